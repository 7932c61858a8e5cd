package postgres

import (
	"context"
	"fmt"

	"github.com/GetStream/party-engagement/feed"
	"github.com/GetStream/party-engagement/party"
)

// UpsertStatus inserts or replaces the status of a user for a status type.
// A stored status newer than s is kept and party.ErrConflict returned.
func (pg *Postgres) UpsertStatus(ctx context.Context, s party.StatusUpdate) error {
	m := &statusUpdate{
		PartyID:   s.PartyID,
		UserID:    s.UserID,
		Type:      string(s.Type),
		Level:     s.Level,
		Message:   s.Message,
		Timestamp: s.Timestamp,
	}
	res, err := pg.bun.NewInsert().
		Model(m).
		On("CONFLICT (party_id, user_id, type) DO UPDATE").
		Set("level = EXCLUDED.level").
		Set("message = EXCLUDED.message").
		Set("timestamp = EXCLUDED.timestamp").
		Where("st.timestamp <= EXCLUDED.timestamp").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("status of %s is newer: %w", s.UserID, party.ErrConflict)
	}
	return nil
}

// InsertFeedItem inserts a feed item. An existing ID fails with
// party.ErrConflict.
func (pg *Postgres) InsertFeedItem(ctx context.Context, item party.FeedItem) error {
	m, err := newFeedItem(item)
	if err != nil {
		return err
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("insert: %w", conflictError(err))
	}
	return nil
}

// PageFeed returns up to limit feed items of a party that sort after cursor.
// Pages are keyed on (timestamp, id), so inserts never shift them.
func (pg *Postgres) PageFeed(ctx context.Context, partyID string, cursor *feed.Cursor, limit int) ([]party.FeedItem, error) {
	var rows []feedItem
	q := pg.bun.NewSelect().
		Model(&rows).
		Where("party_id = ?", partyID).
		OrderExpr("timestamp DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		q = q.Where("(timestamp, id) < (?, ?)", cursor.Timestamp, cursor.ID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return feedItems(rows)
}

// InsertReaction inserts a reaction. A reaction of the same user with the
// same emoji on the same target fails with party.ErrConflict.
func (pg *Postgres) InsertReaction(ctx context.Context, r party.Reaction) error {
	m := &reaction{
		ID:        r.ID,
		PartyID:   r.PartyID,
		TargetID:  r.TargetID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: r.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("insert: %w", conflictError(err))
	}
	return nil
}

// DeleteReaction deletes a reaction.
func (pg *Postgres) DeleteReaction(ctx context.Context, reactionID string) error {
	res, err := pg.bun.NewDelete().Model((*reaction)(nil)).Where("id = ?", reactionID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reaction %s: %w", reactionID, party.ErrNotFound)
	}
	return nil
}

// countsQuery reads every score input in one statement, so all of them come
// from the same snapshot.
const countsQuery = `
SELECT
	(SELECT count(*) FROM guests WHERE party_id = ?0) AS guests,
	(SELECT count(*) FROM feed_items WHERE party_id = ?0 AND kind = ?1) AS media,
	(SELECT count(*) FROM feed_items WHERE party_id = ?0 AND kind = ?2) AS comments,
	(SELECT count(*) FROM reactions WHERE party_id = ?0) AS reactions,
	(SELECT count(*) FROM statuses WHERE party_id = ?0 AND type = ?3) AS statuses,
	(SELECT coalesce(sum(level), 0) FROM statuses WHERE party_id = ?0 AND type = ?3) AS vibe_sum`

// Counts returns the score inputs of a party.
func (pg *Postgres) Counts(ctx context.Context, partyID string) (party.Counts, error) {
	var row struct {
		Guests    int `bun:"guests"`
		Media     int `bun:"media"`
		Comments  int `bun:"comments"`
		Reactions int `bun:"reactions"`
		Statuses  int `bun:"statuses"`
		VibeSum   int `bun:"vibe_sum"`
	}
	err := pg.bun.NewRaw(countsQuery, partyID, string(party.PayloadMedia), string(party.PayloadComment), string(party.StatusVibe)).Scan(ctx, &row)
	if err != nil {
		return party.Counts{}, fmt.Errorf("scan counts: %w", err)
	}
	return party.Counts{
		Guests:    row.Guests,
		Media:     row.Media,
		Comments:  row.Comments,
		Reactions: row.Reactions,
		Statuses:  row.Statuses,
		VibeSum:   row.VibeSum,
	}, nil
}

func feedItems(rows []feedItem) ([]party.FeedItem, error) {
	out := make([]party.FeedItem, len(rows))
	for i, r := range rows {
		item, err := r.PartyFeedItem()
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}
