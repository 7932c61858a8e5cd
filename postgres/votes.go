package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GetStream/party-engagement/party"
	"github.com/GetStream/party-engagement/votes"
	"github.com/uptrace/bun"
)

// SaveSubject inserts a new subject.
func (pg *Postgres) SaveSubject(ctx context.Context, s party.Subject) error {
	if _, err := pg.bun.NewInsert().Model(newSubject(s)).Exec(ctx); err != nil {
		return fmt.Errorf("insert: %w", conflictError(err))
	}
	return nil
}

// UpdateSubjectStatus changes the status of a subject.
func (pg *Postgres) UpdateSubjectStatus(ctx context.Context, subjectID string, status party.SubjectStatus) error {
	res, err := pg.bun.NewUpdate().
		Model((*subject)(nil)).
		Set("status = ?", string(status)).
		Where("id = ?", subjectID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subject %s: %w", subjectID, party.ErrNotFound)
	}
	return nil
}

// LoadSubject returns a subject and the direction of voterID on it.
func (pg *Postgres) LoadSubject(ctx context.Context, subjectID, voterID string) (party.Subject, party.Direction, error) {
	var s subject
	err := pg.bun.NewSelect().Model(&s).Where("id = ?", subjectID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return party.Subject{}, party.None, fmt.Errorf("subject %s: %w", subjectID, party.ErrNotFound)
	}
	if err != nil {
		return party.Subject{}, party.None, fmt.Errorf("select subject: %w", err)
	}
	dir, err := voteDirection(ctx, pg.bun, subjectID, voterID, false)
	if err != nil {
		return party.Subject{}, party.None, err
	}
	return s.PartySubject(), dir, nil
}

// ApplyVote persists a vote change in one transaction. The subject row is
// only updated when its version is still c.PrevVersion and it still accepts
// votes, and the vote row only when it still holds c.Prev; otherwise
// ApplyVote fails with party.ErrConflict.
func (pg *Postgres) ApplyVote(ctx context.Context, c votes.Change) error {
	return pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*subject)(nil)).
			Set("upvotes = ?", c.Subject.Upvotes).
			Set("downvotes = ?", c.Subject.Downvotes).
			Set("version = ?", c.Subject.Version).
			Where("id = ?", c.Subject.ID).
			Where("version = ?", c.PrevVersion).
			Where("status IN (?)", bun.In([]string{string(party.StatusOpen), string(party.StatusPlaying)})).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update subject: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("subject %s changed: %w", c.Subject.ID, party.ErrConflict)
		}

		cur, err := voteDirection(ctx, tx, c.Subject.ID, c.VoterID, true)
		if err != nil {
			return err
		}
		if cur != c.Prev {
			return fmt.Errorf("vote of %s changed: %w", c.VoterID, party.ErrConflict)
		}

		if c.Next == party.None {
			_, err = tx.NewDelete().
				Model((*vote)(nil)).
				Where("subject_id = ?", c.Subject.ID).
				Where("voter_id = ?", c.VoterID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("delete vote: %w", err)
			}
			return nil
		}
		_, err = tx.NewInsert().
			Model(&vote{SubjectID: c.Subject.ID, VoterID: c.VoterID, Direction: int8(c.Next)}).
			On("CONFLICT (subject_id, voter_id) DO UPDATE").
			Set("direction = EXCLUDED.direction").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert vote: %w", err)
		}
		return nil
	})
}

func voteDirection(ctx context.Context, db bun.IDB, subjectID, voterID string, forUpdate bool) (party.Direction, error) {
	var v vote
	q := db.NewSelect().Model(&v).Where("subject_id = ?", subjectID).Where("voter_id = ?", voterID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return party.None, nil
	}
	if err != nil {
		return party.None, fmt.Errorf("select vote: %w", err)
	}
	return party.Direction(v.Direction), nil
}
