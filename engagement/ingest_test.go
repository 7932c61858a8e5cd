package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/GetStream/party-engagement/party"
	"github.com/GetStream/party-engagement/votes"
	"github.com/google/go-cmp/cmp"
)

func TestParty_Ingest(t *testing.T) {
	p := NewParty("p1", testOptions(t))
	ctx := context.Background()
	if _, err := p.AddSubject(ctx, party.Subject{ID: "song-1", Group: "queue"}); err != nil {
		t.Fatal(err)
	}

	events := []Event{
		{Type: EventGuestJoined, PartyID: "p1", UserID: "g1"},
		{Type: EventGuestJoined, PartyID: "p1", UserID: "g2"},
		{Type: EventGuestLeft, UserID: "g2"},
		{Type: EventComment, UserID: "g1", Text: "let's go", Timestamp: t0},
		{Type: EventMediaAdded, ID: "media-1", UserID: "g1", URL: "https://cdn/1.mp4", Timestamp: t0},
		{Type: EventDrink, UserID: "g1", Drink: "lemonade", Count: 2, Timestamp: t0},
		{Type: EventStatus, UserID: "g1", StatusType: party.StatusVibe, Level: 4, Timestamp: t0},
		{Type: EventReaction, UserID: "g1", TargetID: "media-1", Emoji: "🔥"},
		// Redelivered events are applied once.
		{Type: EventReaction, UserID: "g1", TargetID: "media-1", Emoji: "🔥"},
		{Type: EventVote, UserID: "g1", SubjectID: "song-1", Direction: party.Up},
		{Type: EventVote, UserID: "g1", SubjectID: "song-1", Direction: party.Up},
		{Type: EventVote, UserID: "g2", SubjectID: "song-1", Direction: party.Down},
		{Type: EventVoteRetracted, UserID: "g2", SubjectID: "song-1"},
	}
	for i, e := range events {
		if err := p.Ingest(ctx, e); err != nil {
			t.Fatalf("event %d (%s): Ingest() error = %v", i, e.Type, err)
		}
	}

	want := party.Counts{Guests: 1, Media: 1, Comments: 1, Reactions: 1, Statuses: 1, VibeSum: 4}
	if diff := cmp.Diff(want, p.Counts()); diff != "" {
		t.Errorf("Counts() mismatch (-want +got):\n%s", diff)
	}
	s, _ := p.Subject("song-1")
	if s.Upvotes != 1 || s.Downvotes != 0 {
		t.Errorf("Got %d up / %d down, want 1 / 0", s.Upvotes, s.Downvotes)
	}
	page, err := p.PageFeed(ctx, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	kinds := make(map[party.PayloadKind]int)
	for _, it := range page.Items {
		kinds[it.Payload.Kind()]++
	}
	wantKinds := map[party.PayloadKind]int{
		party.PayloadComment: 1,
		party.PayloadMedia:   1,
		party.PayloadDrink:   1,
		party.PayloadStatus:  1,
	}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Errorf("Feed kinds mismatch (-want +got):\n%s", diff)
	}

	if err := p.Ingest(ctx, Event{Type: EventReactionRemoved, UserID: "g1", TargetID: "media-1", Emoji: "🔥"}); err != nil {
		t.Fatal(err)
	}
	if p.Counts().Reactions != 0 {
		t.Errorf("Got %d reactions, want 0", p.Counts().Reactions)
	}
}

func TestParty_Ingest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{name: "UnknownType", event: Event{Type: "fireworks"}, wantErr: party.ErrValidation},
		{name: "OtherParty", event: Event{Type: EventGuestJoined, PartyID: "p2", UserID: "g1"}, wantErr: party.ErrValidation},
		{name: "GuestWithoutUser", event: Event{Type: EventGuestJoined}, wantErr: party.ErrValidation},
		{name: "EmptyComment", event: Event{Type: EventComment, UserID: "g1"}, wantErr: party.ErrValidation},
		{name: "StatusOutOfRange", event: Event{Type: EventStatus, UserID: "g1", StatusType: party.StatusVibe, Level: 7}, wantErr: party.ErrValidation},
		{name: "VoteWithoutDirection", event: Event{Type: EventVote, UserID: "g1", SubjectID: "song-1"}, wantErr: party.ErrValidation},
		{name: "VoteUnknownSubject", event: Event{Type: EventVote, UserID: "g1", SubjectID: "nope", Direction: party.Up}, wantErr: party.ErrNotFound},
		{name: "VoteClosedSubject", event: Event{Type: EventVote, UserID: "g1", SubjectID: "closed", Direction: party.Up}, wantErr: party.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParty("p1", testOptions(t))
			ctx := context.Background()
			_, _ = p.AddSubject(ctx, party.Subject{ID: "song-1"})
			_, _ = p.AddSubject(ctx, party.Subject{ID: "closed", Status: party.StatusClosed})

			if err := p.Ingest(ctx, tt.event); !errors.Is(err, tt.wantErr) {
				t.Errorf("Ingest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParty_Ingest_VoteSharedStore(t *testing.T) {
	ctx := context.Background()
	store := newVersionedVoteStore(party.Subject{ID: "song-1", PartyID: "p1", Group: "queue", Status: party.StatusOpen, CreatedAt: t0})

	// Two processes serve the same party from one store.
	opts := testOptions(t)
	opts.VoteStore = store
	a, b := NewParty("p1", opts), NewParty("p1", opts)
	for _, p := range []*Party{a, b} {
		s, _, _ := store.LoadSubject(ctx, "song-1", "")
		p.ledger.Load([]party.Subject{s}, nil)
	}

	vote := Event{Type: EventVote, PartyID: "p1", UserID: "alice", SubjectID: "song-1", Direction: party.Up}
	if err := a.Ingest(ctx, vote); err != nil {
		t.Fatalf("a.Ingest() error = %v", err)
	}
	// b still holds the subject as it was before a's write.
	if err := b.Ingest(ctx, vote); err != nil {
		t.Fatalf("b.Ingest() error = %v", err)
	}

	s, dir, _ := store.LoadSubject(ctx, "song-1", "alice")
	if dir != party.Up || s.Tally() != 1 {
		t.Errorf("Stored vote %s with tally %d, want up with tally 1", dir, s.Tally())
	}
	if got, _ := b.Subject("song-1"); got.Tally() != 1 {
		t.Errorf("b tally = %d, want 1", got.Tally())
	}
}

func TestParty_Ingest_ConcurrentRedelivery(t *testing.T) {
	ctx := context.Background()
	store := newVersionedVoteStore(party.Subject{ID: "song-1", PartyID: "p1", Status: party.StatusOpen, CreatedAt: t0})
	opts := testOptions(t)
	opts.VoteStore = store
	p := NewParty("p1", opts)
	s, _, _ := store.LoadSubject(ctx, "song-1", "")
	p.ledger.Load([]party.Subject{s}, nil)

	vote := Event{Type: EventVote, UserID: "alice", SubjectID: "song-1", Direction: party.Down}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Ingest(ctx, vote); err != nil {
				t.Errorf("Ingest() error = %v", err)
			}
		}()
	}
	wg.Wait()

	s, dir, _ := store.LoadSubject(ctx, "song-1", "alice")
	if dir != party.Down || s.Tally() != -1 {
		t.Errorf("Stored vote %s with tally %d, want down with tally -1", dir, s.Tally())
	}
}

// versionedVoteStore is an in-memory votes.Store with the same
// compare-and-swap semantics as the PostgreSQL store.
type versionedVoteStore struct {
	mu       sync.Mutex
	subjects map[string]party.Subject
	votes    map[string]map[string]party.Direction
}

func newVersionedVoteStore(subjects ...party.Subject) *versionedVoteStore {
	s := &versionedVoteStore{
		subjects: make(map[string]party.Subject),
		votes:    make(map[string]map[string]party.Direction),
	}
	for _, subj := range subjects {
		s.subjects[subj.ID] = subj
		s.votes[subj.ID] = make(map[string]party.Direction)
	}
	return s
}

func (s *versionedVoteStore) SaveSubject(_ context.Context, subj party.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subjects[subj.ID]; ok {
		return party.ErrConflict
	}
	s.subjects[subj.ID] = subj
	s.votes[subj.ID] = make(map[string]party.Direction)
	return nil
}

func (s *versionedVoteStore) UpdateSubjectStatus(_ context.Context, subjectID string, status party.SubjectStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj, ok := s.subjects[subjectID]
	if !ok {
		return party.ErrNotFound
	}
	subj.Status = status
	s.subjects[subjectID] = subj
	return nil
}

func (s *versionedVoteStore) LoadSubject(_ context.Context, subjectID, voterID string) (party.Subject, party.Direction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj, ok := s.subjects[subjectID]
	if !ok {
		return party.Subject{}, party.None, party.ErrNotFound
	}
	return subj, s.votes[subjectID][voterID], nil
}

func (s *versionedVoteStore) ApplyVote(_ context.Context, c votes.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.subjects[c.Subject.ID]
	if cur.Version != c.PrevVersion || !cur.Status.AcceptsVotes() || s.votes[c.Subject.ID][c.VoterID] != c.Prev {
		return party.ErrConflict
	}
	s.subjects[c.Subject.ID] = c.Subject
	if c.Next == party.None {
		delete(s.votes[c.Subject.ID], c.VoterID)
	} else {
		s.votes[c.Subject.ID][c.VoterID] = c.Next
	}
	return nil
}

func TestParty_Ingest_Redelivery(t *testing.T) {
	ctx := context.Background()
	events := []Event{
		{Type: EventStatus, ID: "st-1", UserID: "g1", StatusType: party.StatusVibe, Level: 4, Timestamp: t0},
		{Type: EventComment, ID: "c-1", UserID: "g1", Text: "again", Timestamp: t0},
		{Type: EventDrink, ID: "d-1", UserID: "g1", Drink: "soda", Count: 1, Timestamp: t0},
	}
	p := NewParty("p1", testOptions(t))
	for range 3 {
		for _, e := range events {
			if err := p.Ingest(ctx, e); err != nil {
				t.Fatalf("Ingest(%s) error = %v", e.ID, err)
			}
		}
	}

	page, err := p.PageFeed(ctx, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, it := range page.Items {
		ids = append(ids, it.ID)
	}
	if diff := cmp.Diff([]string{"st-1", "d-1", "c-1"}, ids); diff != "" {
		t.Errorf("Feed mismatch (-want +got):\n%s", diff)
	}
	want := party.Counts{Comments: 1, Statuses: 1, VibeSum: 4}
	if diff := cmp.Diff(want, p.Counts()); diff != "" {
		t.Errorf("Counts() mismatch (-want +got):\n%s", diff)
	}
}

func TestParty_Ingest_StatusRedeliveredAfterRestart(t *testing.T) {
	ctx := context.Background()
	var inserted []string
	opts := testOptions(t)
	opts.FeedStore = &testFeedStore{
		insertFeedItem: func(item party.FeedItem) error {
			// The item was persisted before the restart.
			if item.ID == "st-1" {
				return party.ErrConflict
			}
			inserted = append(inserted, item.ID)
			return nil
		},
	}
	p := NewParty("p1", opts)

	e := Event{Type: EventStatus, ID: "st-1", UserID: "g1", StatusType: party.StatusVibe, Level: 2, Timestamp: t0}
	if err := p.Ingest(ctx, e); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(inserted) != 0 {
		t.Errorf("Inserted feed items %v, want none", inserted)
	}
	s, err := p.Status("g1", party.StatusVibe)
	if err != nil || s.Level != 2 {
		t.Errorf("Status() = %+v, %v; want level 2", s, err)
	}
}
