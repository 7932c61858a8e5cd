// Package feed composes the activity feed of a party from independently
// ordered sources and pages through it by cursor.
//
// Feed order is timestamp descending with ties broken by ID descending. A
// page boundary is the (timestamp, id) of the last item served, so items
// inserted ahead of a cursor never shift the pages that follow it.
package feed

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/GetStream/party-engagement/party"
)

// Default paging limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// A Store persists feed items. PageFeed returns up to limit items of a party
// that sort after cursor, in feed order; a nil cursor starts at the newest
// item.
type Store interface {
	InsertFeedItem(ctx context.Context, item party.FeedItem) error
	PageFeed(ctx context.Context, partyID string, cursor *Cursor, limit int) ([]party.FeedItem, error)
}

// A Page is one page of the feed.
type Page struct {
	Items []party.FeedItem
	// Next is the cursor of the following page, nil when End is set.
	Next *Cursor
	// End reports that no items follow this page.
	End bool
}

// Options configures a Composer.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// Composer holds the feed items of a party, one ordered sequence per payload
// kind.
type Composer struct {
	mu      sync.RWMutex
	ids     map[string]struct{}
	sources map[party.PayloadKind][]party.FeedItem

	defaultLimit int
	maxLimit     int
}

// NewComposer returns an empty Composer.
func NewComposer(opts Options) *Composer {
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = MaxLimit
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	opts.DefaultLimit = min(opts.DefaultLimit, opts.MaxLimit)
	return &Composer{
		ids:          make(map[string]struct{}),
		sources:      make(map[party.PayloadKind][]party.FeedItem),
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
	}
}

// Append adds an item to the feed. Items are immutable once appended; an
// item whose ID is already present fails with party.ErrConflict.
func (c *Composer) Append(item party.FeedItem) error {
	if err := Validate(item); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[item.ID]; ok {
		return fmt.Errorf("feed item %s: %w", item.ID, party.ErrConflict)
	}
	kind := item.Payload.Kind()
	src := c.sources[kind]
	// Most items are the newest of their source and land at index 0.
	i := sort.Search(len(src), func(i int) bool { return item.Before(src[i]) })
	c.sources[kind] = slices.Insert(src, i, item)
	c.ids[item.ID] = struct{}{}
	return nil
}

// Page returns up to limit items that sort after cursor. A nil cursor starts
// at the newest item. A limit of zero or less uses the default limit, and
// limits above the maximum are capped.
func (c *Composer) Page(cursor *Cursor, limit int) Page {
	limit = c.Limit(limit)

	c.mu.RLock()
	defer c.mu.RUnlock()
	tails := make([][]party.FeedItem, 0, len(c.sources))
	for _, kind := range party.PayloadKinds {
		src := c.sources[kind]
		if cursor != nil {
			src = src[sort.Search(len(src), func(i int) bool { return cursor.After(src[i]) }):]
		}
		tails = append(tails, src)
	}
	return NewPage(merge(tails, limit+1), limit)
}

// Source returns a copy of the items of one payload kind in feed order.
func (c *Composer) Source(kind party.PayloadKind) []party.FeedItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.sources[kind])
}

// Has reports whether an item with the given ID was appended.
func (c *Composer) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[id]
	return ok
}

// Len returns the number of items in the feed.
func (c *Composer) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Limit normalizes a requested page size.
func (c *Composer) Limit(limit int) int {
	if limit <= 0 {
		return c.defaultLimit
	}
	return min(limit, c.maxLimit)
}

// NewPage builds a page from up to limit+1 items in feed order. The extra
// item only signals that the feed continues.
func NewPage(items []party.FeedItem, limit int) Page {
	if len(items) <= limit {
		if items == nil {
			items = []party.FeedItem{}
		}
		return Page{Items: items, End: true}
	}
	items = items[:limit]
	return Page{Items: items, Next: CursorOf(items[limit-1])}
}

// Validate checks that item is complete and its payload is well formed.
func Validate(item party.FeedItem) error {
	if item.ID == "" {
		return party.NewValidationError("ID", "is required")
	}
	if item.Timestamp.IsZero() {
		return party.NewValidationError("Timestamp", "is required")
	}

	switch p := item.Payload.(type) {
	case party.Comment:
		if p.UserID == "" || p.Text == "" {
			return party.NewValidationError("Payload", "comment needs a user and a text")
		}
	case party.StatusPosted:
		if p.UserID == "" || p.Level < party.MinLevel || p.Level > party.MaxLevel {
			return party.NewValidationError("Payload", "status needs a user and a level within [%d, %d]", party.MinLevel, party.MaxLevel)
		}
	case party.DrinkLogged:
		if p.UserID == "" || p.Count < 1 {
			return party.NewValidationError("Payload", "drink log needs a user and a positive count")
		}
	case party.MediaAdded:
		if p.MediaID == "" && p.URL == "" {
			return party.NewValidationError("Payload", "media needs an ID or a URL")
		}
	case nil:
		return party.NewValidationError("Payload", "is required")
	default:
		return party.NewValidationError("Payload", "unknown payload %T", p)
	}
	return nil
}
