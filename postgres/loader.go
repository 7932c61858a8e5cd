package postgres

import (
	"context"
	"fmt"

	"github.com/GetStream/party-engagement/party"
)

// LoadGuests returns the IDs of the guests of a party.
func (pg *Postgres) LoadGuests(ctx context.Context, partyID string) ([]string, error) {
	var ids []string
	err := pg.bun.NewSelect().
		Model((*guest)(nil)).
		Column("user_id").
		Where("party_id = ?", partyID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("scan guests: %w", err)
	}
	return ids, nil
}

// LoadMedia returns the media feed items of a party in feed order.
func (pg *Postgres) LoadMedia(ctx context.Context, partyID string) ([]party.FeedItem, error) {
	return pg.loadFeedKind(ctx, partyID, party.PayloadMedia)
}

// LoadComments returns the comment feed items of a party in feed order.
func (pg *Postgres) LoadComments(ctx context.Context, partyID string) ([]party.FeedItem, error) {
	return pg.loadFeedKind(ctx, partyID, party.PayloadComment)
}

func (pg *Postgres) loadFeedKind(ctx context.Context, partyID string, kind party.PayloadKind) ([]party.FeedItem, error) {
	var rows []feedItem
	err := pg.bun.NewSelect().
		Model(&rows).
		Where("party_id = ?", partyID).
		Where("kind = ?", string(kind)).
		OrderExpr("timestamp DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}
	return feedItems(rows)
}

// LoadPolls returns the subjects of a party with their votes.
func (pg *Postgres) LoadPolls(ctx context.Context, partyID string) ([]party.Subject, []party.Vote, error) {
	var subjects []subject
	if err := pg.bun.NewSelect().Model(&subjects).Where("party_id = ?", partyID).Scan(ctx); err != nil {
		return nil, nil, fmt.Errorf("scan subjects: %w", err)
	}
	var votes []vote
	err := pg.bun.NewSelect().
		Model(&votes).
		Join("JOIN subjects AS sj ON sj.id = v.subject_id").
		Where("sj.party_id = ?", partyID).
		Scan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("scan votes: %w", err)
	}

	outSubjects := make([]party.Subject, len(subjects))
	for i, s := range subjects {
		outSubjects[i] = s.PartySubject()
	}
	outVotes := make([]party.Vote, len(votes))
	for i, v := range votes {
		outVotes[i] = v.PartyVote()
	}
	return outSubjects, outVotes, nil
}

// LoadStatuses returns the live statuses of a party.
func (pg *Postgres) LoadStatuses(ctx context.Context, partyID string) ([]party.StatusUpdate, error) {
	var rows []statusUpdate
	if err := pg.bun.NewSelect().Model(&rows).Where("party_id = ?", partyID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan statuses: %w", err)
	}
	out := make([]party.StatusUpdate, len(rows))
	for i, r := range rows {
		out[i] = r.PartyStatus()
	}
	return out, nil
}

// LoadReactions returns the reactions of a party.
func (pg *Postgres) LoadReactions(ctx context.Context, partyID string) ([]party.Reaction, error) {
	var rows []reaction
	if err := pg.bun.NewSelect().Model(&rows).Where("party_id = ?", partyID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan reactions: %w", err)
	}
	out := make([]party.Reaction, len(rows))
	for i, r := range rows {
		out[i] = r.PartyReaction()
	}
	return out, nil
}
