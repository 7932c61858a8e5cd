package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
)

var keys = []string{
	"POSTGRES_DSN", "REDIS_ADDR", "VOTE_MAX_ATTEMPTS", "LOAD_WORKERS",
	"FEED_DEFAULT_LIMIT", "FEED_MAX_LIMIT", "FEED_CACHE_SIZE", "LOCK_EXPIRY",
	"INGEST_STREAM",
}

// clearEnv unsets every config variable for the duration of the test. Tests
// run from the package directory, which has no .env file.
func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Config
	}{
		{
			name: "Defaults",
			want: Config{
				VoteMaxAttempts:  5,
				LoadWorkers:      8,
				FeedDefaultLimit: 20,
				FeedMaxLimit:     100,
				FeedCacheSize:    200,
				LockExpiry:       2 * time.Second,
				IngestStream:     "party:events",
			},
		},
		{
			name: "Overrides",
			env: map[string]string{
				"POSTGRES_DSN":       "postgres://localhost/party",
				"REDIS_ADDR":         "localhost:6379",
				"VOTE_MAX_ATTEMPTS":  "3",
				"LOAD_WORKERS":       "2",
				"FEED_DEFAULT_LIMIT": "10",
				"FEED_MAX_LIMIT":     "50",
				"FEED_CACHE_SIZE":    "500",
				"LOCK_EXPIRY":        "750ms",
				"INGEST_STREAM":      "events",
			},
			want: Config{
				PostgresDSN:      "postgres://localhost/party",
				RedisAddr:        "localhost:6379",
				VoteMaxAttempts:  3,
				LoadWorkers:      2,
				FeedDefaultLimit: 10,
				FeedMaxLimit:     50,
				FeedCacheSize:    500,
				LockExpiry:       750 * time.Millisecond,
				IngestStream:     "events",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "NotANumber", key: "VOTE_MAX_ATTEMPTS", val: "many"},
		{name: "Zero", key: "LOAD_WORKERS", val: "0"},
		{name: "Negative", key: "FEED_CACHE_SIZE", val: "-1"},
		{name: "BadDuration", key: "LOCK_EXPIRY", val: "soon"},
		{name: "DefaultAboveMax", key: "FEED_DEFAULT_LIMIT", val: "500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q error = nil, want error", tt.key, tt.val)
			}
		})
	}
}

func TestConfig_PartyOptions(t *testing.T) {
	cfg := Config{VoteMaxAttempts: 4, FeedDefaultLimit: 10, FeedMaxLimit: 30}
	logger := slogt.New(t)
	opts := cfg.PartyOptions(logger)
	if opts.MaxVoteAttempts != 4 || opts.FeedDefaultLimit != 10 || opts.FeedMaxLimit != 30 {
		t.Errorf("PartyOptions() = %+v, want limits from config", opts)
	}
	if opts.Logger != logger {
		t.Error("PartyOptions() did not carry the logger")
	}
}
