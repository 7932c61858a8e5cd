// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/GetStream/party-engagement/engagement"
	"github.com/GetStream/party-engagement/redis"
	"github.com/joho/godotenv"
)

// Config holds the connection settings and tunables of the engagement core.
type Config struct {
	PostgresDSN string
	RedisAddr   string

	VoteMaxAttempts  int
	LoadWorkers      int
	FeedDefaultLimit int
	FeedMaxLimit     int
	FeedCacheSize    int
	LockExpiry       time.Duration
	IngestStream     string
}

// Load reads an optional .env file from the working directory and then the
// environment. Variables already set in the environment take precedence over
// the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		IngestStream: getEnv("INGEST_STREAM", redis.DefaultStream),
	}
	var err error
	if cfg.VoteMaxAttempts, err = intFromEnv("VOTE_MAX_ATTEMPTS", 5); err != nil {
		return Config{}, err
	}
	if cfg.LoadWorkers, err = intFromEnv("LOAD_WORKERS", 8); err != nil {
		return Config{}, err
	}
	if cfg.FeedDefaultLimit, err = intFromEnv("FEED_DEFAULT_LIMIT", 20); err != nil {
		return Config{}, err
	}
	if cfg.FeedMaxLimit, err = intFromEnv("FEED_MAX_LIMIT", 100); err != nil {
		return Config{}, err
	}
	if cfg.FeedCacheSize, err = intFromEnv("FEED_CACHE_SIZE", redis.DefaultFeedCacheSize); err != nil {
		return Config{}, err
	}
	if cfg.LockExpiry, err = durationFromEnv("LOCK_EXPIRY", redis.DefaultLockExpiry); err != nil {
		return Config{}, err
	}
	if cfg.FeedDefaultLimit > cfg.FeedMaxLimit {
		return Config{}, fmt.Errorf("FEED_DEFAULT_LIMIT %d exceeds FEED_MAX_LIMIT %d", cfg.FeedDefaultLimit, cfg.FeedMaxLimit)
	}
	return cfg, nil
}

// PartyOptions returns the party options for cfg. Stores are left for the
// caller to attach.
func (cfg Config) PartyOptions(logger *slog.Logger) engagement.Options {
	return engagement.Options{
		MaxVoteAttempts:  cfg.VoteMaxAttempts,
		FeedDefaultLimit: cfg.FeedDefaultLimit,
		FeedMaxLimit:     cfg.FeedMaxLimit,
		Logger:           logger,
	}
}

// getEnv returns the given env var, or def if not set.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", key, v)
	}
	return n, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: want a positive duration, got %q", key, v)
	}
	return d, nil
}
