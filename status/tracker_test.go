package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GetStream/party-engagement/party"
	"github.com/google/go-cmp/cmp"
)

var t0 = time.Date(2024, 6, 1, 21, 0, 0, 0, time.UTC)

func TestTracker_PostStatus(t *testing.T) {
	tests := []struct {
		name     string
		posts    []party.StatusUpdate
		wantPrev *party.StatusUpdate
		want     party.StatusUpdate
	}{
		{
			name:  "First",
			posts: []party.StatusUpdate{{UserID: "u1", Type: party.StatusVibe, Level: 3, Timestamp: t0}},
			want:  party.StatusUpdate{UserID: "u1", Type: party.StatusVibe, Level: 3, Timestamp: t0},
		},
		{
			name: "SecondReplacesFirst",
			posts: []party.StatusUpdate{
				{UserID: "u1", Type: party.StatusVibe, Level: 3, Message: "warming up", Timestamp: t0},
				{UserID: "u1", Type: party.StatusVibe, Level: 5, Timestamp: t0.Add(time.Minute)},
			},
			wantPrev: &party.StatusUpdate{UserID: "u1", Type: party.StatusVibe, Level: 3, Message: "warming up", Timestamp: t0},
			want:     party.StatusUpdate{UserID: "u1", Type: party.StatusVibe, Level: 5, Timestamp: t0.Add(time.Minute)},
		},
		{
			name: "EqualTimestampReplaces",
			posts: []party.StatusUpdate{
				{UserID: "u1", Type: party.StatusVibe, Level: 1, Timestamp: t0},
				{UserID: "u1", Type: party.StatusVibe, Level: 2, Timestamp: t0},
			},
			wantPrev: &party.StatusUpdate{UserID: "u1", Type: party.StatusVibe, Level: 1, Timestamp: t0},
			want:     party.StatusUpdate{UserID: "u1", Type: party.StatusVibe, Level: 2, Timestamp: t0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(nil)
			var (
				prev *party.StatusUpdate
				err  error
			)
			for _, p := range tt.posts {
				prev, err = tr.PostStatus(context.Background(), p)
				if err != nil {
					t.Fatalf("PostStatus() error = %v", err)
				}
			}
			if diff := cmp.Diff(tt.wantPrev, prev); diff != "" {
				t.Errorf("PostStatus() previous mismatch (-want +got):\n%s", diff)
			}
			got, err := tr.Get("u1", party.StatusVibe)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Get() mismatch (-want +got):\n%s", diff)
			}
			if tr.Len() != 1 {
				t.Errorf("Got %d records, want 1", tr.Len())
			}
		})
	}
}

func TestTracker_PostStatus_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		in    party.StatusUpdate
		field string
	}{
		{name: "LevelZero", in: party.StatusUpdate{UserID: "u1", Type: party.StatusVibe, Level: 0}, field: "Level"},
		{name: "LevelSix", in: party.StatusUpdate{UserID: "u1", Type: party.StatusVibe, Level: 6}, field: "Level"},
		{name: "NoUser", in: party.StatusUpdate{Type: party.StatusVibe, Level: 2}, field: "UserID"},
		{name: "NoType", in: party.StatusUpdate{UserID: "u1", Level: 2}, field: "Type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &testStore{upsertStatus: func(party.StatusUpdate) error {
				t.Error("UpsertStatus() called for invalid update")
				return nil
			}}
			tr := New(store)

			_, err := tr.PostStatus(context.Background(), tt.in)
			var verr *party.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("PostStatus() error = %v, want *party.ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Got field %q, want %q", verr.Field, tt.field)
			}
			if tr.Len() != 0 {
				t.Errorf("Got %d records, want 0", tr.Len())
			}
		})
	}
}

func TestTracker_PostStatus_Stale(t *testing.T) {
	tr := New(nil)
	ctx := context.Background()
	if _, err := tr.PostStatus(ctx, party.StatusUpdate{UserID: "u1", Type: party.StatusMood, Level: 4, Timestamp: t0}); err != nil {
		t.Fatal(err)
	}

	_, err := tr.PostStatus(ctx, party.StatusUpdate{UserID: "u1", Type: party.StatusMood, Level: 1, Timestamp: t0.Add(-time.Second)})
	if !errors.Is(err, party.ErrConflict) {
		t.Fatalf("PostStatus() error = %v, want ErrConflict", err)
	}
	got, _ := tr.Get("u1", party.StatusMood)
	if got.Level != 4 {
		t.Errorf("Got level %d, want 4", got.Level)
	}
}

func TestTracker_PostStatus_StoreError(t *testing.T) {
	tr := New(&testStore{upsertStatus: func(party.StatusUpdate) error {
		return errors.New("connection refused")
	}})

	if _, err := tr.PostStatus(context.Background(), party.StatusUpdate{UserID: "u1", Type: party.StatusVibe, Level: 2}); err == nil {
		t.Fatal("PostStatus() expected error")
	}
	if _, err := tr.Get("u1", party.StatusVibe); !errors.Is(err, party.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestTracker_Aggregate(t *testing.T) {
	tr := New(nil)
	ctx := context.Background()
	posts := []party.StatusUpdate{
		{UserID: "u1", Type: party.StatusVibe, Level: 5, Timestamp: t0},
		{UserID: "u2", Type: party.StatusVibe, Level: 2, Timestamp: t0},
		{UserID: "u1", Type: party.StatusVibe, Level: 4, Timestamp: t0.Add(time.Second)},
		{UserID: "u1", Type: party.StatusDrink, Level: 1, Timestamp: t0},
	}
	for _, p := range posts {
		if _, err := tr.PostStatus(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		typ  party.StatusType
		want Aggregate
	}{
		{typ: party.StatusVibe, want: Aggregate{Count: 2, Sum: 6, Mean: 3}},
		{typ: party.StatusDrink, want: Aggregate{Count: 1, Sum: 1, Mean: 1}},
		{typ: party.StatusMood, want: Aggregate{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tr.Aggregate(tt.typ)); diff != "" {
				t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Posts on distinct keys never interfere and each key ends with one record.
func TestTracker_ConcurrentPosts(t *testing.T) {
	tr := New(nil)
	const users = 50

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		for level := party.MinLevel; level <= party.MaxLevel; level++ {
			wg.Add(1)
			go func(user string, level int) {
				defer wg.Done()
				_, _ = tr.PostStatus(context.Background(), party.StatusUpdate{
					UserID:    user,
					Type:      party.StatusVibe,
					Level:     level,
					Timestamp: t0.Add(time.Duration(level) * time.Second),
				})
			}(fmt.Sprintf("u%d", i), level)
		}
	}
	wg.Wait()

	if tr.Len() != users {
		t.Errorf("Got %d records, want %d", tr.Len(), users)
	}
	want := Aggregate{Count: users, Sum: users * party.MaxLevel, Mean: party.MaxLevel}
	if diff := cmp.Diff(want, tr.Aggregate(party.StatusVibe)); diff != "" {
		t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_Load(t *testing.T) {
	tr := New(nil)
	tr.Load([]party.StatusUpdate{
		{UserID: "u1", Type: party.StatusVibe, Level: 2, Timestamp: t0.Add(time.Minute)},
		{UserID: "u1", Type: party.StatusVibe, Level: 4, Timestamp: t0},
	})

	got, err := tr.Get("u1", party.StatusVibe)
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != 2 {
		t.Errorf("Got level %d, want 2", got.Level)
	}
}

type testStore struct {
	upsertStatus func(s party.StatusUpdate) error
}

func (s *testStore) UpsertStatus(_ context.Context, st party.StatusUpdate) error {
	return s.upsertStatus(st)
}
