package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/GetStream/party-engagement/engagement"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultStream is the stream realtime party events are published to.
const DefaultStream = "party:events"

const eventField = "event"

// Publish appends an event to a stream and returns its entry ID.
func (r *Redis) Publish(ctx context.Context, stream string, e engagement.Event) (string, error) {
	b, err := msgpack.Marshal(&e)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	id, err := r.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{eventField: b},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// A Handler applies one event, for example engagement.Registry.Ingest.
type Handler func(ctx context.Context, e engagement.Event) error

// StreamConfig configures a StreamConsumer.
type StreamConfig struct {
	Stream string
	// LastID is the entry to read after: "0" reads the whole stream and "$"
	// only new entries. Default: "$".
	LastID string
	// Count is the max number of entries per read. Default: 100.
	Count int64
	// Block is how long one read waits for entries. Default: 5 seconds.
	Block time.Duration
	// RetryInterval is the first wait after a failed read; it doubles up to
	// MaxRetryInterval. Defaults: 1 and 30 seconds.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
	Logger           *slog.Logger
}

// StreamConsumer reads realtime events from a Redis stream and hands them to
// a Handler.
type StreamConsumer struct {
	cli    *redis.Client
	config StreamConfig
	logger *slog.Logger
}

// StreamConsumer returns a consumer of config.Stream.
func (r *Redis) StreamConsumer(config StreamConfig) (*StreamConsumer, error) {
	if config.Stream == "" {
		return nil, errors.New("stream name is required")
	}
	if config.LastID == "" {
		config.LastID = "$"
	}
	if config.Count == 0 {
		config.Count = 100
	}
	if config.Block == 0 {
		config.Block = 5 * time.Second
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = time.Second
	}
	if config.MaxRetryInterval == 0 {
		config.MaxRetryInterval = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StreamConsumer{
		cli:    r.cli,
		config: config,
		logger: logger.With("stream", config.Stream),
	}, nil
}

// Run reads events until ctx is canceled. Failed reads are retried with
// exponential backoff. An event that fails to decode or apply is logged and
// skipped.
func (sc *StreamConsumer) Run(ctx context.Context, handler Handler) error {
	lastID := sc.config.LastID
	retryInterval := sc.config.RetryInterval

	for {
		select {
		case <-ctx.Done():
			sc.logger.Info("Stream consumer shutting down")
			return ctx.Err()
		default:
		}

		streams, err := sc.cli.XRead(ctx, &redis.XReadArgs{
			Streams: []string{sc.config.Stream, lastID},
			Count:   sc.config.Count,
			Block:   sc.config.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			sc.logger.Warn("Could not read from stream, will retry",
				"error", err.Error(), "retry_in", retryInterval)
			select {
			case <-time.After(retryInterval):
				retryInterval = min(retryInterval*2, sc.config.MaxRetryInterval)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		retryInterval = sc.config.RetryInterval

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				if err := sc.process(ctx, handler, msg); err != nil {
					sc.logger.Error("Could not process event", "id", msg.ID, "error", err.Error())
				}
			}
		}
	}
}

func (sc *StreamConsumer) process(ctx context.Context, handler Handler, msg redis.XMessage) error {
	e, err := decodeEvent(msg.Values)
	if err != nil {
		return err
	}
	return handler(ctx, e)
}

func decodeEvent(values map[string]any) (engagement.Event, error) {
	var raw []byte
	switch v := values[eventField].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return engagement.Event{}, fmt.Errorf("missing %q field", eventField)
	}
	var e engagement.Event
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return engagement.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return e, nil
}
