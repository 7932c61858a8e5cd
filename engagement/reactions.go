package engagement

import (
	"context"
	"fmt"

	"github.com/GetStream/party-engagement/party"
	"github.com/puzpuzpuz/xsync/v4"
)

type reactionKey struct {
	targetID string
	userID   string
	emoji    string
}

type reactionState struct {
	id string
	// pending is set while a write of this reaction awaits the store.
	pending bool
}

// ToggleReaction adds the reaction of userID with emoji to a target, or
// removes it if present, and reports whether the reaction is now present.
//
// The change is applied locally first and then confirmed by the reaction
// store; a failed write rolls the local change back. A toggle racing a
// pending write on the same reaction fails with party.ErrConflict.
func (p *Party) ToggleReaction(ctx context.Context, targetID, userID, emoji string) (bool, error) {
	if targetID == "" || userID == "" || emoji == "" {
		return false, party.NewValidationError("Reaction", "target, user and emoji are required")
	}
	k := reactionKey{targetID: targetID, userID: userID, emoji: emoji}

	var (
		id       string
		adding   bool
		conflict bool
	)
	p.reactions.Compute(k, func(cur reactionState, loaded bool) (reactionState, xsync.ComputeOp) {
		switch {
		case loaded && cur.pending:
			conflict = true
			return cur, xsync.CancelOp
		case loaded:
			id = cur.id
			return reactionState{id: cur.id, pending: true}, xsync.UpdateOp
		default:
			id, adding = p.newID(), true
			return reactionState{id: id, pending: true}, xsync.UpdateOp
		}
	})
	if conflict {
		return false, fmt.Errorf("reaction %s on %s: %w", emoji, targetID, party.ErrConflict)
	}
	delta := 1
	if !adding {
		delta = -1
	}
	p.updateCounts(func(c *party.Counts) { c.Reactions += delta })

	if err := p.persistReaction(ctx, adding, party.Reaction{
		ID:        id,
		PartyID:   p.id,
		TargetID:  targetID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: p.now(),
	}); err != nil {
		p.logger.Warn("Rolling back reaction", "target_id", targetID, "user_id", userID, "error", err.Error())
		p.updateCounts(func(c *party.Counts) { c.Reactions -= delta })
		if adding {
			p.reactions.Delete(k)
		} else {
			p.reactions.Store(k, reactionState{id: id})
		}
		return !adding, err
	}

	if adding {
		p.reactions.Store(k, reactionState{id: id})
	} else {
		p.reactions.Delete(k)
	}
	return adding, nil
}

// HasReaction reports whether a confirmed or pending reaction is present.
func (p *Party) HasReaction(targetID, userID, emoji string) bool {
	_, ok := p.reactions.Load(reactionKey{targetID: targetID, userID: userID, emoji: emoji})
	return ok
}

func (p *Party) persistReaction(ctx context.Context, adding bool, r party.Reaction) error {
	if p.reactionStore == nil {
		return nil
	}
	if adding {
		if err := p.reactionStore.InsertReaction(ctx, r); err != nil {
			return fmt.Errorf("insert reaction: %w", err)
		}
		return nil
	}
	if err := p.reactionStore.DeleteReaction(ctx, r.ID); err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}
