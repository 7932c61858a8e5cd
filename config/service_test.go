package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/GetStream/party-engagement/engagement"
	"github.com/neilotoole/slogt"
)

func TestConfig_Open_Memory(t *testing.T) {
	cfg := Config{VoteMaxAttempts: 3, LoadWorkers: 2, FeedDefaultLimit: 5, FeedMaxLimit: 10}
	svc, err := cfg.Open(context.Background(), slogt.New(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer svc.Close()

	if svc.Postgres != nil || svc.Redis != nil || svc.Consumer != nil {
		t.Errorf("Open() without addresses = %+v, want only a registry", svc)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Error("Run() without ingest stream error = nil, want error")
	}

	ctx := context.Background()
	if err := svc.Registry.Ingest(ctx, engagement.Event{Type: engagement.EventGuestJoined, PartyID: "p1", UserID: "alice"}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	p, err := svc.Registry.Open(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("Open(p1) error = %v", err)
	}
	if got := p.Counts().Guests; got != 1 {
		t.Errorf("Got %d guests, want 1", got)
	}
}

func TestConfig_Open_Redis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	cfg := Config{
		RedisAddr:     addr,
		LoadWorkers:   2,
		FeedCacheSize: 10,
		LockExpiry:    time.Second,
		IngestStream:  "test:config:" + time.Now().Format("150405.000000"),
	}
	svc, err := cfg.Open(context.Background(), slogt.New(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer svc.Close()
	if svc.Consumer == nil {
		t.Fatal("Open() with Redis has no stream consumer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// The consumer reads only entries added after it started, so publish
	// until the event lands. Joining twice is a no-op.
	e := engagement.Event{Type: engagement.EventGuestJoined, PartyID: "p1", UserID: "alice"}
	for svc.Registry.Party("p1").Counts().Guests == 0 {
		if _, err := svc.Redis.Publish(ctx, cfg.IngestStream, e); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		select {
		case <-ctx.Done():
			t.Fatal("event was not ingested")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
