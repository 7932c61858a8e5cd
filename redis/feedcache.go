package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/GetStream/party-engagement/feed"
	"github.com/GetStream/party-engagement/party"
	"github.com/redis/go-redis/v9"
)

const (
	feedPrefix = "feed"
	// DefaultFeedCacheSize is the number of items kept per party.
	DefaultFeedCacheSize = 200
)

// FeedCache keeps the newest items of every party feed in a sorted set
// scored by unix milliseconds.
//
// The cache only answers for items at or after its floor: the time it
// started caching a party, raised past the oldest kept item once the set is
// trimmed. Older items may be missing, so pages reaching below the floor come
// back short and are read from the store.
type FeedCache struct {
	cli     *redis.Client
	maxSize int64
	now     func() time.Time
}

// FeedCache returns a feed cache keeping the newest maxSize items per party.
func (r *Redis) FeedCache(maxSize int) *FeedCache {
	if maxSize <= 0 {
		maxSize = DefaultFeedCacheSize
	}
	return &FeedCache{cli: r.cli, maxSize: int64(maxSize), now: time.Now}
}

func feedKey(partyID string) string {
	return fmt.Sprintf("%s:%s", feedPrefix, partyID)
}

func sinceKey(partyID string) string {
	return fmt.Sprintf("%s:%s:since", feedPrefix, partyID)
}

// InsertFeedItem adds an item to the party feed and evicts the oldest items
// beyond the cache size.
func (c *FeedCache) InsertFeedItem(ctx context.Context, item party.FeedItem) error {
	member, err := encodeFeedItem(item)
	if err != nil {
		return err
	}
	key := feedKey(item.PartyID)

	err = c.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetNX(ctx, sinceKey(item.PartyID), c.now().UnixMilli(), 0)
			pipe.ZAdd(ctx, key, redis.Z{
				Score:  float64(item.Timestamp.UnixMilli()),
				Member: member,
			})
			pipe.ZRemRangeByRank(ctx, key, 0, -c.maxSize-1)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("redis insert feed item: %w", err)
	}
	return nil
}

// PageFeed returns up to limit cached items of a party that sort after
// cursor, in feed order.
func (c *FeedCache) PageFeed(ctx context.Context, partyID string, cursor *feed.Cursor, limit int) ([]party.FeedItem, error) {
	key := feedKey(partyID)
	floor, ok, err := c.floor(ctx, partyID)
	if err != nil || !ok {
		return nil, err
	}

	upper := "+inf"
	var members []string
	if cursor != nil {
		ms := cursor.Timestamp.UnixMilli()
		if ms < floor {
			return nil, nil
		}
		upper = "(" + strconv.FormatInt(ms, 10)
		// Items sharing the cursor's millisecond may still follow it.
		ties, err := c.cli.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: strconv.FormatInt(ms, 10), Max: strconv.FormatInt(ms, 10)}).Result()
		if err != nil {
			return nil, fmt.Errorf("zrange: %w", err)
		}
		members = append(members, ties...)
	}

	older, err := c.cli.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:   strconv.FormatInt(floor, 10),
		Max:   upper,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange: %w", err)
	}
	for _, z := range older {
		members = append(members, z.Member.(string))
	}
	if len(older) == limit {
		// Sorted set ties are ordered by member bytes, not by ID, so the
		// last score may have been cut short.
		last := strconv.FormatInt(int64(older[len(older)-1].Score), 10)
		ties, err := c.cli.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: last, Max: last}).Result()
		if err != nil {
			return nil, fmt.Errorf("zrange: %w", err)
		}
		members = append(members, ties...)
	}

	seen := make(map[string]struct{}, len(members))
	items := make([]party.FeedItem, 0, len(members))
	for _, m := range members {
		item, err := decodeFeedItem(m)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		if cursor != nil && !cursor.After(item) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Before(items[j]) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// floor returns the oldest millisecond the cache is complete for. It reports
// false when nothing was cached for the party.
func (c *FeedCache) floor(ctx context.Context, partyID string) (int64, bool, error) {
	key := feedKey(partyID)
	pipe := c.cli.Pipeline()
	sinceCmd := pipe.Get(ctx, sinceKey(partyID))
	cardCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, false, fmt.Errorf("read feed floor: %w", err)
	}

	since, err := sinceCmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read feed floor: %w", err)
	}
	if cardCmd.Val() >= c.maxSize {
		if oldest := oldestCmd.Val(); len(oldest) > 0 {
			// Items at the oldest kept score may have been evicted.
			since = max(since, int64(oldest[0].Score)+1)
		}
	}
	return since, true, nil
}
