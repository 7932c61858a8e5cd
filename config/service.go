package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/GetStream/party-engagement/engagement"
	"github.com/GetStream/party-engagement/postgres"
	"github.com/GetStream/party-engagement/redis"
)

// Service is the engagement core assembled from a Config. Postgres and Redis
// are nil when their address is not configured.
type Service struct {
	Registry *engagement.Registry
	// Consumer reads realtime events from the ingest stream; nil without
	// Redis.
	Consumer *redis.StreamConsumer
	Postgres *postgres.Postgres
	Redis    *redis.Redis
}

// Open connects the configured stores and builds the party registry on top
// of them. Without a Postgres DSN parties keep their state in memory and are
// never loaded; without a Redis address there is no feed cache, cross
// process vote lock or ingest stream.
func (cfg Config) Open(ctx context.Context, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{}
	opts := cfg.PartyOptions(logger)

	if cfg.PostgresDSN != "" {
		pg, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		svc.Postgres = pg
		opts.VoteStore = pg
		opts.StatusStore = pg
		opts.FeedStore = pg
		opts.ReactionStore = pg
		opts.Loader = pg
	}

	if cfg.RedisAddr != "" {
		rd, err := redis.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		svc.Redis = rd
		opts.FeedCache = rd.FeedCache(cfg.FeedCacheSize)
		opts.Locker = rd.Locker(cfg.LockExpiry)

		svc.Consumer, err = rd.StreamConsumer(redis.StreamConfig{
			Stream: cfg.IngestStream,
			Logger: logger,
		})
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("ingest stream: %w", err)
		}
	}

	svc.Registry = engagement.NewRegistry(opts, cfg.LoadWorkers)
	logger.Info("Engagement service ready",
		"postgres", svc.Postgres != nil, "redis", svc.Redis != nil,
		"load_workers", cfg.LoadWorkers, "ingest_stream", cfg.IngestStream)
	return svc, nil
}

// Run applies events from the ingest stream to the registry until ctx is
// canceled.
func (s *Service) Run(ctx context.Context) error {
	if s.Consumer == nil {
		return errors.New("no ingest stream: REDIS_ADDR is not set")
	}
	return s.Consumer.Run(ctx, s.Registry.Ingest)
}

// Close stops the registry and closes the store connections.
func (s *Service) Close() error {
	if s.Registry != nil {
		s.Registry.Close()
	}
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.Postgres != nil {
		errs = append(errs, s.Postgres.Close())
	}
	return errors.Join(errs...)
}
