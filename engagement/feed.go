package engagement

import (
	"context"
	"fmt"

	"github.com/GetStream/party-engagement/feed"
	"github.com/GetStream/party-engagement/party"
)

// AppendFeedEvent appends an item to the party feed and returns it. A missing
// ID or timestamp is generated. Comments and media also count towards the
// score.
func (p *Party) AppendFeedEvent(ctx context.Context, item party.FeedItem) (party.FeedItem, error) {
	item.PartyID = p.id
	if item.ID == "" {
		item.ID = p.newID()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = p.now()
	}
	if err := feed.Validate(item); err != nil {
		return party.FeedItem{}, err
	}

	if p.feedStore != nil {
		if err := p.feedStore.InsertFeedItem(ctx, item); err != nil {
			return party.FeedItem{}, fmt.Errorf("insert feed item: %w", err)
		}
	}
	if err := p.feed.Append(item); err != nil {
		return party.FeedItem{}, err
	}

	p.countFeedItem(item)

	if p.cache != nil {
		if err := p.cache.InsertFeedItem(ctx, item); err != nil {
			p.logger.Error("Could not cache feed item", "item_id", item.ID, "error", err.Error())
		}
	}
	return item, nil
}

// PageFeed returns up to limit feed items older than cursor; a nil cursor
// starts at the newest item.
//
// Pages are served from the feed cache when it holds the whole page, then
// from the feed store, and from memory when the party has no feed store.
func (p *Party) PageFeed(ctx context.Context, cursor *feed.Cursor, limit int) (feed.Page, error) {
	limit = p.feed.Limit(limit)

	if p.cache != nil {
		items, err := p.cache.PageFeed(ctx, p.id, cursor, limit+1)
		switch {
		case err != nil:
			p.logger.Error("Could not page feed from cache", "error", err.Error())
		case len(items) > limit:
			p.logger.Debug("Got feed page from cache", "count", limit)
			return feed.NewPage(items, limit), nil
		}
	}

	if p.feedStore != nil {
		items, err := p.feedStore.PageFeed(ctx, p.id, cursor, limit+1)
		if err != nil {
			return feed.Page{}, fmt.Errorf("page feed: %w", err)
		}
		return feed.NewPage(items, limit), nil
	}
	return p.feed.Page(cursor, limit), nil
}

func (p *Party) countFeedItem(item party.FeedItem) {
	switch item.Payload.(type) {
	case party.Comment:
		p.updateCounts(func(c *party.Counts) { c.Comments++ })
	case party.MediaAdded:
		p.updateCounts(func(c *party.Counts) { c.Media++ })
	case party.StatusPosted, party.DrinkLogged:
	}
}
