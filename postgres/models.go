package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/GetStream/party-engagement/party"
	"github.com/uptrace/bun"
)

// A subject represents a poll option or a song request in the database.
type subject struct {
	bun.BaseModel `bun:"table:subjects,alias:sj"`

	ID        string    `bun:",pk"`
	PartyID   string    `bun:",notnull"`
	GroupID   string    `bun:",notnull"`
	Kind      string    `bun:",notnull"`
	Label     string    `bun:",notnull,default:''"`
	Upvotes   int64     `bun:",notnull,default:0"`
	Downvotes int64     `bun:",notnull,default:0"`
	Status    string    `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:now()"`
	Version   int64     `bun:",notnull,default:0"`
}

type vote struct {
	bun.BaseModel `bun:"table:votes,alias:v"`

	SubjectID string `bun:",pk"`
	VoterID   string `bun:",pk"`
	Direction int8   `bun:",notnull"`
}

type statusUpdate struct {
	bun.BaseModel `bun:"table:statuses,alias:st"`

	PartyID   string    `bun:",pk"`
	UserID    string    `bun:",pk"`
	Type      string    `bun:",pk"`
	Level     int       `bun:",notnull"`
	Message   string    `bun:",notnull,default:''"`
	Timestamp time.Time `bun:",notnull"`
}

type feedItem struct {
	bun.BaseModel `bun:"table:feed_items,alias:fi"`

	ID        string          `bun:",pk"`
	PartyID   string          `bun:",notnull"`
	Kind      string          `bun:",notnull"`
	Timestamp time.Time       `bun:",notnull"`
	Payload   json.RawMessage `bun:"type:jsonb,notnull"`
}

type reaction struct {
	bun.BaseModel `bun:"table:reactions,alias:r"`

	ID        string    `bun:",pk"`
	PartyID   string    `bun:",notnull"`
	TargetID  string    `bun:",notnull,unique:reaction_target_user_emoji"`
	UserID    string    `bun:",notnull,unique:reaction_target_user_emoji"`
	Emoji     string    `bun:",notnull,unique:reaction_target_user_emoji"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:now()"`
}

type guest struct {
	bun.BaseModel `bun:"table:guests,alias:g"`

	PartyID  string    `bun:",pk"`
	UserID   string    `bun:",pk"`
	JoinedAt time.Time `bun:",nullzero,notnull,default:now()"`
}

func newSubject(s party.Subject) *subject {
	return &subject{
		ID:        s.ID,
		PartyID:   s.PartyID,
		GroupID:   s.Group,
		Kind:      string(s.Kind),
		Label:     s.Label,
		Upvotes:   s.Upvotes,
		Downvotes: s.Downvotes,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
		Version:   s.Version,
	}
}

func (s subject) PartySubject() party.Subject {
	return party.Subject{
		ID:        s.ID,
		PartyID:   s.PartyID,
		Group:     s.GroupID,
		Kind:      party.SubjectKind(s.Kind),
		Label:     s.Label,
		Upvotes:   s.Upvotes,
		Downvotes: s.Downvotes,
		Status:    party.SubjectStatus(s.Status),
		CreatedAt: s.CreatedAt,
		Version:   s.Version,
	}
}

func (v vote) PartyVote() party.Vote {
	return party.Vote{SubjectID: v.SubjectID, VoterID: v.VoterID, Direction: party.Direction(v.Direction)}
}

func (r reaction) PartyReaction() party.Reaction {
	return party.Reaction{
		ID:        r.ID,
		PartyID:   r.PartyID,
		TargetID:  r.TargetID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: r.CreatedAt,
	}
}

func (s statusUpdate) PartyStatus() party.StatusUpdate {
	return party.StatusUpdate{
		PartyID:   s.PartyID,
		UserID:    s.UserID,
		Type:      party.StatusType(s.Type),
		Level:     s.Level,
		Message:   s.Message,
		Timestamp: s.Timestamp,
	}
}

func newFeedItem(item party.FeedItem) (*feedItem, error) {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &feedItem{
		ID:        item.ID,
		PartyID:   item.PartyID,
		Kind:      string(item.Payload.Kind()),
		Timestamp: item.Timestamp,
		Payload:   payload,
	}, nil
}

func (f feedItem) PartyFeedItem() (party.FeedItem, error) {
	payload, err := party.DecodePayload(party.PayloadKind(f.Kind), func(v any) error {
		return json.Unmarshal(f.Payload, v)
	})
	if err != nil {
		return party.FeedItem{}, fmt.Errorf("feed item %s: %w", f.ID, err)
	}
	return party.FeedItem{
		ID:        f.ID,
		PartyID:   f.PartyID,
		Timestamp: f.Timestamp,
		Payload:   payload,
	}, nil
}
