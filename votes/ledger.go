package votes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/GetStream/party-engagement/party"
	"github.com/puzpuzpuz/xsync/v4"
)

// DefaultMaxAttempts is the number of store writes CastVote tries before it
// gives up with party.ErrConflict.
const DefaultMaxAttempts = 5

// A Store persists subjects and votes.
type Store interface {
	// SaveSubject inserts a new subject.
	SaveSubject(ctx context.Context, s party.Subject) error
	// UpdateSubjectStatus changes the status of a subject.
	UpdateSubjectStatus(ctx context.Context, subjectID string, status party.SubjectStatus) error
	// LoadSubject returns the stored subject and the stored direction of
	// voterID on it, party.None when the voter has no vote.
	LoadSubject(ctx context.Context, subjectID, voterID string) (party.Subject, party.Direction, error)
	// ApplyVote persists a vote change. It returns party.ErrConflict when
	// the stored subject version differs from c.PrevVersion or the stored
	// direction of the voter differs from c.Prev.
	ApplyVote(ctx context.Context, c Change) error
}

// A Change is one persisted transition of a voter's vote on a subject.
type Change struct {
	// Subject is the subject after the change.
	Subject     party.Subject
	PrevVersion int64
	VoterID     string
	Prev        party.Direction
	// Next is the new direction; party.None deletes the vote.
	Next party.Direction
}

// A Locker serializes writers to the same subject across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Options configures a Ledger.
type Options struct {
	MaxAttempts int
	// Locker is optional. Writers in one process are always serialized per
	// subject; a Locker extends that to every process sharing the store.
	Locker Locker
	Logger *slog.Logger
	Now    func() time.Time
}

type subjectState struct {
	mu      sync.Mutex
	subject party.Subject
	votes   map[string]party.Direction
}

// Ledger keeps the vote state of every subject of a party. Votes on one
// subject are applied one at a time; votes on different subjects never
// contend.
type Ledger struct {
	store    Store
	subjects *xsync.Map[string, *subjectState]

	maxAttempts int
	locker      Locker
	logger      *slog.Logger
	now         func() time.Time
}

// New returns a Ledger persisting to store. A nil store keeps votes in
// memory only.
func New(store Store, opts Options) *Ledger {
	if store == nil {
		store = nopStore{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		store:       store,
		subjects:    xsync.NewMap[string, *subjectState](),
		maxAttempts: opts.MaxAttempts,
		locker:      opts.Locker,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// AddSubject registers and persists a new subject. Zero status defaults to
// open and zero creation time to now.
func (l *Ledger) AddSubject(ctx context.Context, s party.Subject) (party.Subject, error) {
	if s.ID == "" {
		return party.Subject{}, party.NewValidationError("ID", "is required")
	}
	if s.Status == "" {
		s.Status = party.StatusOpen
	}
	if !s.Status.Valid() {
		return party.Subject{}, party.NewValidationError("Status", "unknown status %q", s.Status)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = l.now()
	}
	s.Upvotes, s.Downvotes, s.Version = 0, 0, 0

	st := &subjectState{subject: s, votes: make(map[string]party.Direction)}
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, loaded := l.subjects.LoadOrStore(s.ID, st); loaded {
		return party.Subject{}, fmt.Errorf("subject %s: %w", s.ID, party.ErrConflict)
	}
	if err := l.store.SaveSubject(ctx, s); err != nil {
		l.subjects.Delete(s.ID)
		return party.Subject{}, fmt.Errorf("save subject: %w", err)
	}
	return s, nil
}

// Load seeds the ledger with subjects and votes read from the store. Known
// subjects are replaced.
func (l *Ledger) Load(subjects []party.Subject, votes []party.Vote) {
	bySubject := make(map[string]map[string]party.Direction, len(subjects))
	for _, v := range votes {
		if !v.Direction.Valid() {
			continue
		}
		m, ok := bySubject[v.SubjectID]
		if !ok {
			m = make(map[string]party.Direction)
			bySubject[v.SubjectID] = m
		}
		m[v.VoterID] = v.Direction
	}
	for _, s := range subjects {
		m := bySubject[s.ID]
		if m == nil {
			m = make(map[string]party.Direction)
		}
		l.subjects.Store(s.ID, &subjectState{subject: s, votes: m})
	}
}

// SetStatus moves a subject to a new lifecycle status, for example closing a
// poll or marking a song as played.
func (l *Ledger) SetStatus(ctx context.Context, subjectID string, status party.SubjectStatus) error {
	if !status.Valid() {
		return party.NewValidationError("Status", "unknown status %q", status)
	}
	st, err := l.state(subjectID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := l.store.UpdateSubjectStatus(ctx, subjectID, status); err != nil {
		return fmt.Errorf("update subject status: %w", err)
	}
	st.subject.Status = status
	return nil
}

// CastVote records a vote of voterID on a subject and returns the new net
// tally. Casting the voter's current direction again retracts the vote;
// casting the opposite direction flips it.
func (l *Ledger) CastVote(ctx context.Context, subjectID, voterID string, dir party.Direction) (int64, error) {
	if !dir.Valid() {
		return 0, party.NewValidationError("Direction", "must be up or down, got %s", dir)
	}
	return l.mutate(ctx, subjectID, voterID, func(prev party.Direction) party.Direction {
		if prev == dir {
			return party.None
		}
		return dir
	})
}

// SetVote makes dir the vote of voterID on a subject and returns the new net
// tally. Unlike CastVote it never toggles: setting the current direction
// again is a no-op, even when the current direction is only learned from the
// store after a lost write.
func (l *Ledger) SetVote(ctx context.Context, subjectID, voterID string, dir party.Direction) (int64, error) {
	if !dir.Valid() {
		return 0, party.NewValidationError("Direction", "must be up or down, got %s", dir)
	}
	return l.mutate(ctx, subjectID, voterID, func(party.Direction) party.Direction {
		return dir
	})
}

// RetractVote removes the vote of voterID on a subject and returns the new
// net tally. Retracting a missing vote is a no-op.
func (l *Ledger) RetractVote(ctx context.Context, subjectID, voterID string) (int64, error) {
	return l.mutate(ctx, subjectID, voterID, func(party.Direction) party.Direction {
		return party.None
	})
}

func (l *Ledger) mutate(ctx context.Context, subjectID, voterID string, next func(prev party.Direction) party.Direction) (int64, error) {
	if voterID == "" {
		return 0, party.NewValidationError("VoterID", "is required")
	}
	st, err := l.state(subjectID)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, "vote-lock:"+subjectID)
		if err != nil {
			return 0, fmt.Errorf("lock subject %s: %w", subjectID, err)
		}
		defer unlock()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if !st.subject.Status.AcceptsVotes() {
			return 0, fmt.Errorf("subject %s is %s: %w", subjectID, st.subject.Status, party.ErrInvalidState)
		}

		prev := st.votes[voterID]
		nd := next(prev)
		if nd == prev {
			return st.subject.Tally(), nil
		}

		updated := applyDirection(st.subject, prev, nd)
		updated.Version++
		err := l.store.ApplyVote(ctx, Change{
			Subject:     updated,
			PrevVersion: st.subject.Version,
			VoterID:     voterID,
			Prev:        prev,
			Next:        nd,
		})
		if err == nil {
			st.subject = updated
			st.setVote(voterID, nd)
			return updated.Tally(), nil
		}
		if !errors.Is(err, party.ErrConflict) {
			return 0, fmt.Errorf("apply vote: %w", err)
		}
		if attempt >= l.maxAttempts {
			return 0, fmt.Errorf("vote on %s failed after %d attempts: %w", subjectID, attempt, party.ErrConflict)
		}

		l.logger.Warn("Vote write conflict, reloading subject",
			"subject_id", subjectID, "attempt", attempt, "max_attempts", l.maxAttempts)

		subject, dir, err := l.store.LoadSubject(ctx, subjectID, voterID)
		if err != nil {
			return 0, fmt.Errorf("reload subject: %w", err)
		}
		st.subject = subject
		st.setVote(voterID, dir)
	}
}

// Subject returns a copy of the current state of a subject.
func (l *Ledger) Subject(subjectID string) (party.Subject, error) {
	st, err := l.state(subjectID)
	if err != nil {
		return party.Subject{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.subject, nil
}

// Tally returns the net tally of a subject.
func (l *Ledger) Tally(subjectID string) (int64, error) {
	s, err := l.Subject(subjectID)
	if err != nil {
		return 0, err
	}
	return s.Tally(), nil
}

// VoteOf returns the current direction of voterID on a subject.
func (l *Ledger) VoteOf(subjectID, voterID string) (party.Direction, error) {
	st, err := l.state(subjectID)
	if err != nil {
		return party.None, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.votes[voterID], nil
}

// Ranking returns the subjects of a group in rank order.
func (l *Ledger) Ranking(group string) []party.Subject {
	var out []party.Subject
	l.subjects.Range(func(_ string, st *subjectState) bool {
		st.mu.Lock()
		s := st.subject
		st.mu.Unlock()
		if s.Group == group {
			out = append(out, s)
		}
		return true
	})
	Rank(out)
	return out
}

// Rank sorts subjects by net tally, highest first. Equal tallies rank the
// earlier submission first, then the lower ID.
func Rank(subjects []party.Subject) {
	sort.Slice(subjects, func(i, j int) bool {
		a, b := subjects[i], subjects[j]
		if a.Tally() != b.Tally() {
			return a.Tally() > b.Tally()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (l *Ledger) state(subjectID string) (*subjectState, error) {
	st, ok := l.subjects.Load(subjectID)
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", subjectID, party.ErrNotFound)
	}
	return st, nil
}

func (st *subjectState) setVote(voterID string, d party.Direction) {
	if d == party.None {
		delete(st.votes, voterID)
		return
	}
	st.votes[voterID] = d
}

func applyDirection(s party.Subject, prev, next party.Direction) party.Subject {
	switch prev {
	case party.Up:
		s.Upvotes--
	case party.Down:
		s.Downvotes--
	}
	switch next {
	case party.Up:
		s.Upvotes++
	case party.Down:
		s.Downvotes++
	}
	return s
}

type nopStore struct{}

func (nopStore) SaveSubject(context.Context, party.Subject) error { return nil }

func (nopStore) UpdateSubjectStatus(context.Context, string, party.SubjectStatus) error { return nil }

func (nopStore) LoadSubject(_ context.Context, subjectID, _ string) (party.Subject, party.Direction, error) {
	return party.Subject{}, party.None, fmt.Errorf("subject %s: %w", subjectID, party.ErrNotFound)
}

func (nopStore) ApplyVote(context.Context, Change) error { return nil }
