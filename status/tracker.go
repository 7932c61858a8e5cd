// Package status keeps the latest leveled status of every user of a party.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/GetStream/party-engagement/party"
	"github.com/GetStream/party-engagement/validator"
	"github.com/puzpuzpuz/xsync/v4"
)

// A Store persists status updates. UpsertStatus replaces the stored record
// of the same user and type unless the stored record is newer.
type Store interface {
	UpsertStatus(ctx context.Context, s party.StatusUpdate) error
}

type key struct {
	userID string
	typ    party.StatusType
}

// Tracker holds exactly one live record per user and status type.
type Tracker struct {
	store    Store
	records  *xsync.Map[key, party.StatusUpdate]
	validate *validator.Validator
	now      func() time.Time
}

// New returns a Tracker persisting to store. A nil store keeps statuses in
// memory only.
func New(store Store) *Tracker {
	return &Tracker{
		store:    store,
		records:  xsync.NewMap[key, party.StatusUpdate](),
		validate: validator.New(),
		now:      time.Now,
	}
}

// PostStatus replaces the record of (s.UserID, s.Type) and returns the record
// it replaced, or nil for a first post. A zero timestamp is set to now.
//
// An update older than the live record is stale: it is dropped and
// PostStatus fails with party.ErrConflict.
func (t *Tracker) PostStatus(ctx context.Context, s party.StatusUpdate) (*party.StatusUpdate, error) {
	if err := t.validate.Check(s); err != nil {
		return nil, err
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = t.now()
	}
	k := key{userID: s.UserID, typ: s.Type}
	if cur, ok := t.records.Load(k); ok && cur.Timestamp.After(s.Timestamp) {
		return nil, fmt.Errorf("status of %s older than live record: %w", s.UserID, party.ErrConflict)
	}

	if t.store != nil {
		if err := t.store.UpsertStatus(ctx, s); err != nil {
			return nil, fmt.Errorf("upsert status: %w", err)
		}
	}

	var (
		prev  *party.StatusUpdate
		stale bool
	)
	t.records.Compute(k, func(cur party.StatusUpdate, loaded bool) (party.StatusUpdate, xsync.ComputeOp) {
		if loaded && cur.Timestamp.After(s.Timestamp) {
			stale = true
			return cur, xsync.CancelOp
		}
		if loaded {
			p := cur
			prev = &p
		}
		return s, xsync.UpdateOp
	})
	if stale {
		return nil, fmt.Errorf("status of %s older than live record: %w", s.UserID, party.ErrConflict)
	}
	return prev, nil
}

// Get returns the live record of a user for a status type.
func (t *Tracker) Get(userID string, typ party.StatusType) (party.StatusUpdate, error) {
	s, ok := t.records.Load(key{userID: userID, typ: typ})
	if !ok {
		return party.StatusUpdate{}, fmt.Errorf("%s status of %s: %w", typ, userID, party.ErrNotFound)
	}
	return s, nil
}

// Aggregate summarizes the live records of one status type.
type Aggregate struct {
	// Count is the number of distinct users with a live record.
	Count int
	Sum   int
	Mean  float64
}

// Aggregate returns the count and mean level of the live records of typ.
func (t *Tracker) Aggregate(typ party.StatusType) Aggregate {
	var a Aggregate
	t.records.Range(func(k key, s party.StatusUpdate) bool {
		if k.typ == typ {
			a.Count++
			a.Sum += s.Level
		}
		return true
	})
	if a.Count > 0 {
		a.Mean = float64(a.Sum) / float64(a.Count)
	}
	return a
}

// Load seeds the tracker with records read from the store. For duplicate
// keys the newest record wins.
func (t *Tracker) Load(records []party.StatusUpdate) {
	for _, s := range records {
		t.records.Compute(key{userID: s.UserID, typ: s.Type}, func(cur party.StatusUpdate, loaded bool) (party.StatusUpdate, xsync.ComputeOp) {
			if loaded && cur.Timestamp.After(s.Timestamp) {
				return cur, xsync.CancelOp
			}
			return s, xsync.UpdateOp
		})
	}
}

// Len returns the number of live records.
func (t *Tracker) Len() int {
	return t.records.Size()
}
