package redis

import (
	"context"
	"fmt"

	"github.com/GetStream/party-engagement/engagement"
	"github.com/GetStream/party-engagement/votes"
	"github.com/redis/go-redis/v9"
)

var (
	_ engagement.FeedCache = (*FeedCache)(nil)
	_ votes.Locker         = (*Locker)(nil)
)

// Redis provides caching, realtime transport and locking in Redis.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}
