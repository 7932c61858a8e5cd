package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/GetStream/party-engagement/party"
	"github.com/alitto/pond/v2"
)

// Sections of the initial party load.
const (
	SectionGuests    = "guests"
	SectionMedia     = "media"
	SectionComments  = "comments"
	SectionPolls     = "polls"
	SectionStatuses  = "statuses"
	SectionReactions = "reactions"
)

const sectionCount = 6

// Load reads the initial state of the party with every section read
// concurrently on pool. A nil pool runs the reads on a pool of their own.
//
// Sections that loaded are applied even when others failed; the failed ones
// are reported by a *party.PartialLoadError. When ctx is canceled before all
// reads finish, nothing is applied and ctx.Err() is returned. When the pool
// cannot run the reads, for example because it was stopped, nothing is
// applied and the load fails.
func (p *Party) Load(ctx context.Context, loader Loader, pool pond.Pool) error {
	if pool == nil {
		pool = pond.NewPool(sectionCount)
		defer pool.StopAndWait()
	}
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	var (
		ran atomic.Int32

		guests          []string
		media, comments []party.FeedItem
		subjects        []party.Subject
		subjectVotes    []party.Vote
		statuses        []party.StatusUpdate
		reactions       []party.Reaction

		guestsErr, mediaErr, commentsErr, pollsErr, statusesErr, reactionsErr error
	)
	// section wraps a read so that it is skipped once the load is canceled.
	section := func(read func() error, errp *error) func() {
		return func() {
			ran.Add(1)
			if err := groupCtx.Err(); err != nil {
				*errp = err
				return
			}
			*errp = read()
		}
	}
	group.Submit(
		section(func() (err error) {
			guests, err = loader.LoadGuests(groupCtx, p.id)
			return err
		}, &guestsErr),
		section(func() (err error) {
			media, err = loader.LoadMedia(groupCtx, p.id)
			return err
		}, &mediaErr),
		section(func() (err error) {
			comments, err = loader.LoadComments(groupCtx, p.id)
			return err
		}, &commentsErr),
		section(func() (err error) {
			subjects, subjectVotes, err = loader.LoadPolls(groupCtx, p.id)
			return err
		}, &pollsErr),
		section(func() (err error) {
			statuses, err = loader.LoadStatuses(groupCtx, p.id)
			return err
		}, &statusesErr),
		section(func() (err error) {
			reactions, err = loader.LoadReactions(groupCtx, p.id)
			return err
		}, &reactionsErr),
	)

	waitErr := group.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return fmt.Errorf("load party %s: %w", p.id, waitErr)
	}
	if n := ran.Load(); n != sectionCount {
		return fmt.Errorf("load party %s: %d of %d sections ran", p.id, n, sectionCount)
	}

	failed := make(map[string]error)
	if guestsErr != nil {
		failed[SectionGuests] = guestsErr
	} else {
		p.loadGuests(guests)
	}
	if mediaErr != nil {
		failed[SectionMedia] = mediaErr
	} else {
		p.loadFeed(SectionMedia, media)
	}
	if commentsErr != nil {
		failed[SectionComments] = commentsErr
	} else {
		p.loadFeed(SectionComments, comments)
	}
	if pollsErr != nil {
		failed[SectionPolls] = pollsErr
	} else {
		p.ledger.Load(subjects, subjectVotes)
	}
	if statusesErr != nil {
		failed[SectionStatuses] = statusesErr
	} else {
		p.loadStatuses(statuses)
	}
	if reactionsErr != nil {
		failed[SectionReactions] = reactionsErr
	} else {
		p.loadReactions(reactions)
	}

	if len(failed) > 0 {
		err := &party.PartialLoadError{Failed: failed}
		p.logger.Error("Party loaded partially", "failed", err.Sections(), "error", err.Error())
		return err
	}
	p.logger.Info("Party loaded", "guests", len(guests), "media", len(media), "comments", len(comments),
		"subjects", len(subjects), "statuses", len(statuses), "reactions", len(reactions))
	return nil
}

// ensureLoaded loads the party from loader unless an earlier call already
// did. A partial load counts as loaded; a load that failed entirely is
// retried by the next call. Concurrent callers wait for the running load.
func (p *Party) ensureLoaded(ctx context.Context, loader Loader, pool pond.Pool) error {
	if p.loaded.Load() {
		return nil
	}
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if p.loaded.Load() {
		return nil
	}
	err := p.Load(ctx, loader, pool)
	var partial *party.PartialLoadError
	if err == nil || errors.As(err, &partial) {
		p.loaded.Store(true)
	}
	return err
}

func (p *Party) loadGuests(ids []string) {
	for _, id := range ids {
		p.GuestJoined(id)
	}
}

func (p *Party) loadFeed(section string, items []party.FeedItem) {
	for _, item := range items {
		item.PartyID = p.id
		err := p.feed.Append(item)
		switch {
		case errors.Is(err, party.ErrConflict):
			continue
		case err != nil:
			p.logger.Warn("Skipping invalid feed item", "section", section, "item_id", item.ID, "error", err.Error())
			continue
		}
		p.countFeedItem(item)
	}
}

func (p *Party) loadStatuses(records []party.StatusUpdate) {
	p.statuses.Load(records)
	agg := p.statuses.Aggregate(party.StatusVibe)
	p.updateCounts(func(c *party.Counts) {
		c.Statuses = agg.Count
		c.VibeSum = agg.Sum
	})
}

// loadReactions seeds the confirmed reactions so that they can be toggled
// off. Reactions already known to the party are kept.
func (p *Party) loadReactions(reactions []party.Reaction) {
	added := 0
	for _, r := range reactions {
		k := reactionKey{targetID: r.TargetID, userID: r.UserID, emoji: r.Emoji}
		if _, loaded := p.reactions.LoadOrStore(k, reactionState{id: r.ID}); !loaded {
			added++
		}
	}
	if added > 0 {
		p.updateCounts(func(c *party.Counts) { c.Reactions += added })
	}
}
