package engagement

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/GetStream/party-engagement/feed"
	"github.com/GetStream/party-engagement/party"
	"github.com/GetStream/party-engagement/status"
	"github.com/GetStream/party-engagement/votes"
	"github.com/google/uuid"
)

// A ReactionStore persists emoji reactions.
type ReactionStore interface {
	InsertReaction(ctx context.Context, r party.Reaction) error
	DeleteReaction(ctx context.Context, reactionID string) error
}

// A FeedCache holds the newest feed items of a party. It may be incomplete;
// pages it cannot fully serve are read from the feed store.
type FeedCache interface {
	InsertFeedItem(ctx context.Context, item party.FeedItem) error
	PageFeed(ctx context.Context, partyID string, cursor *feed.Cursor, limit int) ([]party.FeedItem, error)
}

// A CountSource reads one consistent snapshot of the score inputs of a party.
type CountSource interface {
	Counts(ctx context.Context, partyID string) (party.Counts, error)
}

// A Loader reads the sections of the initial party load. The sections are
// read concurrently and independently.
type Loader interface {
	LoadGuests(ctx context.Context, partyID string) ([]string, error)
	LoadMedia(ctx context.Context, partyID string) ([]party.FeedItem, error)
	LoadComments(ctx context.Context, partyID string) ([]party.FeedItem, error)
	LoadPolls(ctx context.Context, partyID string) ([]party.Subject, []party.Vote, error)
	LoadStatuses(ctx context.Context, partyID string) ([]party.StatusUpdate, error)
	LoadReactions(ctx context.Context, partyID string) ([]party.Reaction, error)
}

// Options configures a Party. Every store is optional; a party without
// stores keeps its state in memory.
type Options struct {
	VoteStore     votes.Store
	StatusStore   status.Store
	FeedStore     feed.Store
	FeedCache     FeedCache
	ReactionStore ReactionStore
	// Locker serializes vote writers across processes.
	Locker votes.Locker
	// Loader reads the initial state of a party the first time a Registry
	// opens it or routes an event to it.
	Loader Loader

	MaxVoteAttempts  int
	FeedDefaultLimit int
	FeedMaxLimit     int

	Logger *slog.Logger
	Now    func() time.Time
	// NewID generates feed item and reaction IDs. It defaults to
	// time-ordered UUIDs.
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = newID
	}
	return o
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
