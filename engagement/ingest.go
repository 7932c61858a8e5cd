package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/GetStream/party-engagement/party"
)

// EventType names a realtime event.
type EventType string

const (
	EventGuestJoined     EventType = "guest_joined"
	EventGuestLeft       EventType = "guest_left"
	EventMediaAdded      EventType = "media_added"
	EventComment         EventType = "comment"
	EventDrink           EventType = "drink"
	EventReaction        EventType = "reaction"
	EventReactionRemoved EventType = "reaction_removed"
	EventStatus          EventType = "status"
	EventVote            EventType = "vote"
	EventVoteRetracted   EventType = "vote_retracted"
)

// An Event is a participant action delivered by the realtime transport. Only
// the fields of its type are set.
type Event struct {
	Type      EventType `msgpack:"type"`
	PartyID   string    `msgpack:"party_id"`
	ID        string    `msgpack:"id,omitempty"`
	UserID    string    `msgpack:"user_id"`
	Timestamp time.Time `msgpack:"ts"`

	// vote, vote_retracted
	SubjectID string          `msgpack:"subject_id,omitempty"`
	Direction party.Direction `msgpack:"direction,omitempty"`

	// reaction, reaction_removed
	TargetID string `msgpack:"target_id,omitempty"`
	Emoji    string `msgpack:"emoji,omitempty"`

	// status
	StatusType party.StatusType `msgpack:"status_type,omitempty"`
	Level      int              `msgpack:"level,omitempty"`

	// comment, status, drink, media_added
	Text    string `msgpack:"text,omitempty"`
	Drink   string `msgpack:"drink,omitempty"`
	Count   int    `msgpack:"count,omitempty"`
	MediaID string `msgpack:"media_id,omitempty"`
	URL     string `msgpack:"url,omitempty"`
}

// Ingest applies a realtime event to the party. Events go through the same
// operations as the synchronous API, so their invariants and errors are the
// same.
func (p *Party) Ingest(ctx context.Context, e Event) error {
	if e.PartyID != "" && e.PartyID != p.id {
		return party.NewValidationError("PartyID", "event for party %s ingested by party %s", e.PartyID, p.id)
	}

	// A redelivered event whose feed item is already present was applied.
	if e.ID != "" && p.feed.Has(e.ID) {
		switch e.Type {
		case EventComment, EventDrink, EventMediaAdded, EventStatus:
			p.logger.Debug("Skipping redelivered event", "type", e.Type, "id", e.ID)
			return nil
		}
	}

	var err error
	switch e.Type {
	case EventGuestJoined, EventGuestLeft:
		if e.UserID == "" {
			return party.NewValidationError("UserID", "is required")
		}
		if e.Type == EventGuestJoined {
			p.GuestJoined(e.UserID)
		} else {
			p.GuestLeft(e.UserID)
		}
	case EventComment:
		_, err = p.AppendFeedEvent(ctx, e.feedItem(party.Comment{UserID: e.UserID, Text: e.Text}))
	case EventDrink:
		_, err = p.AppendFeedEvent(ctx, e.feedItem(party.DrinkLogged{UserID: e.UserID, Drink: e.Drink, Count: e.Count}))
	case EventMediaAdded:
		_, err = p.AppendFeedEvent(ctx, e.feedItem(party.MediaAdded{UserID: e.UserID, MediaID: e.MediaID, URL: e.URL, Caption: e.Text}))
	case EventStatus:
		_, err = p.postStatus(ctx, party.StatusUpdate{
			UserID:    e.UserID,
			Type:      e.StatusType,
			Level:     e.Level,
			Message:   e.Text,
			Timestamp: e.Timestamp,
		}, e.ID)
	case EventReaction, EventReactionRemoved:
		want := e.Type == EventReaction
		if p.HasReaction(e.TargetID, e.UserID, e.Emoji) != want {
			_, err = p.ToggleReaction(ctx, e.TargetID, e.UserID, e.Emoji)
		}
	case EventVote:
		// A vote event carries the resulting direction, so redelivery must
		// not toggle it back off.
		_, err = p.ledger.SetVote(ctx, e.SubjectID, e.UserID, e.Direction)
	case EventVoteRetracted:
		_, err = p.RetractVote(ctx, e.SubjectID, e.UserID)
	default:
		return party.NewValidationError("Type", "unknown event type %q", e.Type)
	}
	if err != nil {
		return fmt.Errorf("ingest %s: %w", e.Type, err)
	}
	return nil
}

func (e Event) feedItem(payload party.Payload) party.FeedItem {
	return party.FeedItem{ID: e.ID, Timestamp: e.Timestamp, Payload: payload}
}
