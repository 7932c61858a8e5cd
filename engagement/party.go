// Package engagement is the in-process surface of the party engagement core.
// A Party ties together the vote ledger, the status tracker, the feed and the
// score of one party; a Registry hands out one Party per party ID.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GetStream/party-engagement/feed"
	"github.com/GetStream/party-engagement/party"
	"github.com/GetStream/party-engagement/score"
	"github.com/GetStream/party-engagement/status"
	"github.com/GetStream/party-engagement/votes"
	"github.com/puzpuzpuz/xsync/v4"
)

// Party is the live engagement state of one party. It is safe for concurrent
// use.
type Party struct {
	id       string
	ledger   *votes.Ledger
	statuses *status.Tracker
	feed     *feed.Composer

	// counts is replaced, never mutated, so a reader always sees one
	// consistent snapshot.
	counts    atomic.Pointer[party.Counts]
	guests    *xsync.Map[string, struct{}]
	reactions *xsync.Map[reactionKey, reactionState]

	loadMu sync.Mutex
	loaded atomic.Bool

	feedStore     feed.Store
	cache         FeedCache
	reactionStore ReactionStore

	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewParty returns the engagement state of party id.
func NewParty(id string, opts Options) *Party {
	opts = opts.withDefaults()
	p := &Party{
		id: id,
		ledger: votes.New(opts.VoteStore, votes.Options{
			MaxAttempts: opts.MaxVoteAttempts,
			Locker:      opts.Locker,
			Logger:      opts.Logger,
			Now:         opts.Now,
		}),
		statuses: status.New(opts.StatusStore),
		feed: feed.NewComposer(feed.Options{
			DefaultLimit: opts.FeedDefaultLimit,
			MaxLimit:     opts.FeedMaxLimit,
		}),
		guests:        xsync.NewMap[string, struct{}](),
		reactions:     xsync.NewMap[reactionKey, reactionState](),
		feedStore:     opts.FeedStore,
		cache:         opts.FeedCache,
		reactionStore: opts.ReactionStore,
		logger:        opts.Logger.With("party_id", id),
		now:           opts.Now,
		newID:         opts.NewID,
	}
	p.counts.Store(&party.Counts{})
	return p
}

// ID returns the party ID.
func (p *Party) ID() string {
	return p.id
}

// Counts returns the current snapshot of the score inputs.
func (p *Party) Counts() party.Counts {
	return *p.counts.Load()
}

func (p *Party) updateCounts(fn func(c *party.Counts)) {
	for {
		old := p.counts.Load()
		next := *old
		fn(&next)
		if p.counts.CompareAndSwap(old, &next) {
			return
		}
	}
}

// RefreshCounts replaces the counts snapshot with one read from src.
func (p *Party) RefreshCounts(ctx context.Context, src CountSource) error {
	c, err := src.Counts(ctx, p.id)
	if err != nil {
		return fmt.Errorf("read counts: %w", err)
	}
	p.counts.Store(&c)
	return nil
}

// ComputeScore computes the engagement score from the current snapshot.
func (p *Party) ComputeScore() (score.Score, error) {
	return score.Compute(score.FromCounts(*p.counts.Load()))
}

// AddSubject adds a poll option or song request to the party.
func (p *Party) AddSubject(ctx context.Context, s party.Subject) (party.Subject, error) {
	s.PartyID = p.id
	return p.ledger.AddSubject(ctx, s)
}

// SetSubjectStatus moves a subject to a new lifecycle status.
func (p *Party) SetSubjectStatus(ctx context.Context, subjectID string, st party.SubjectStatus) error {
	return p.ledger.SetStatus(ctx, subjectID, st)
}

// CastVote casts, flips or retracts the vote of voterID on a subject and
// returns the new net tally.
func (p *Party) CastVote(ctx context.Context, subjectID, voterID string, dir party.Direction) (int64, error) {
	return p.ledger.CastVote(ctx, subjectID, voterID, dir)
}

// RetractVote removes the vote of voterID on a subject.
func (p *Party) RetractVote(ctx context.Context, subjectID, voterID string) (int64, error) {
	return p.ledger.RetractVote(ctx, subjectID, voterID)
}

// Ranking returns the subjects of a poll or song queue in rank order.
func (p *Party) Ranking(group string) []party.Subject {
	return p.ledger.Ranking(group)
}

// Subject returns the current state of a subject.
func (p *Party) Subject(subjectID string) (party.Subject, error) {
	return p.ledger.Subject(subjectID)
}

// PostStatus replaces the status of (s.UserID, s.Type) and emits a status
// feed item.
func (p *Party) PostStatus(ctx context.Context, s party.StatusUpdate) (party.FeedItem, error) {
	return p.postStatus(ctx, s, "")
}

// postStatus posts s and emits its feed item with the given ID, or a new ID
// when itemID is empty. When an item with itemID already exists the status
// was posted before and the feed is left unchanged.
func (p *Party) postStatus(ctx context.Context, s party.StatusUpdate, itemID string) (party.FeedItem, error) {
	s.PartyID = p.id
	if s.Timestamp.IsZero() {
		s.Timestamp = p.now()
	}
	prev, err := p.statuses.PostStatus(ctx, s)
	if err != nil {
		return party.FeedItem{}, err
	}
	if s.Type == party.StatusVibe {
		p.updateCounts(func(c *party.Counts) {
			if prev == nil {
				c.Statuses++
			} else {
				c.VibeSum -= prev.Level
			}
			c.VibeSum += s.Level
		})
	}

	item := party.FeedItem{
		ID:        itemID,
		Timestamp: s.Timestamp,
		Payload: party.StatusPosted{
			UserID:  s.UserID,
			Type:    s.Type,
			Level:   s.Level,
			Message: s.Message,
		},
	}
	appended, err := p.AppendFeedEvent(ctx, item)
	switch {
	case itemID != "" && errors.Is(err, party.ErrConflict):
		p.logger.Debug("Status feed item already present", "item_id", itemID)
		item.PartyID = p.id
		return item, nil
	case err != nil:
		return party.FeedItem{}, fmt.Errorf("append status feed item: %w", err)
	}
	return appended, nil
}

// Status returns the live status of a user for a status type.
func (p *Party) Status(userID string, typ party.StatusType) (party.StatusUpdate, error) {
	return p.statuses.Get(userID, typ)
}

// StatusAggregate returns the count and mean level of the live statuses of
// typ.
func (p *Party) StatusAggregate(typ party.StatusType) status.Aggregate {
	return p.statuses.Aggregate(typ)
}

// GuestJoined records a guest joining. It reports false if the guest was
// already present.
func (p *Party) GuestJoined(userID string) bool {
	if _, loaded := p.guests.LoadOrStore(userID, struct{}{}); loaded {
		return false
	}
	p.updateCounts(func(c *party.Counts) { c.Guests++ })
	return true
}

// GuestLeft records a guest leaving. It reports false if the guest was not
// present.
func (p *Party) GuestLeft(userID string) bool {
	if _, loaded := p.guests.LoadAndDelete(userID); !loaded {
		return false
	}
	p.updateCounts(func(c *party.Counts) { c.Guests-- })
	return true
}
