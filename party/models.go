package party

import (
	"fmt"
	"time"
)

// A Direction is the direction of a single vote.
type Direction int8

const (
	None Direction = 0
	Up   Direction = 1
	Down Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case None:
		return "none"
	}
	return fmt.Sprintf("direction(%d)", int8(d))
}

// Valid reports whether d is a castable direction.
func (d Direction) Valid() bool {
	return d == Up || d == Down
}

// SubjectStatus is the lifecycle state of a votable subject.
type SubjectStatus string

const (
	StatusOpen     SubjectStatus = "open"
	StatusClosed   SubjectStatus = "closed"
	StatusPlaying  SubjectStatus = "playing"
	StatusPlayed   SubjectStatus = "played"
	StatusRejected SubjectStatus = "rejected"
)

// AcceptsVotes reports whether votes may still be cast on a subject in this
// state.
func (s SubjectStatus) AcceptsVotes() bool {
	return s == StatusOpen || s == StatusPlaying
}

// Valid reports whether s is a known status.
func (s SubjectStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusPlaying, StatusPlayed, StatusRejected:
		return true
	}
	return false
}

// SubjectKind tells poll options and queued songs apart.
type SubjectKind string

const (
	KindPollOption SubjectKind = "poll_option"
	KindSong       SubjectKind = "song"
)

// A Subject is something guests vote on: a poll option or a song request.
type Subject struct {
	ID      string
	PartyID string
	// Group is the poll ID for poll options and the queue ID for songs.
	// Ranking happens within a group.
	Group     string
	Kind      SubjectKind
	Label     string
	Upvotes   int64
	Downvotes int64
	Status    SubjectStatus
	CreatedAt time.Time
	// Version increases on every persisted vote change.
	Version int64
}

// Tally returns the net tally of the subject.
func (s Subject) Tally() int64 {
	return s.Upvotes - s.Downvotes
}

// A Vote is the current vote of one voter on one subject. The absence of a
// Vote means the voter has not voted.
type Vote struct {
	SubjectID string
	VoterID   string
	Direction Direction
}

// StatusType names a kind of leveled status, for example a vibe check.
type StatusType string

const (
	StatusVibe  StatusType = "vibe"
	StatusDrink StatusType = "drink"
	StatusMood  StatusType = "mood"
)

// MinLevel and MaxLevel bound the intensity of a status update.
const (
	MinLevel = 1
	MaxLevel = 5
)

// A StatusUpdate is the latest status a user posted for one status type.
type StatusUpdate struct {
	PartyID   string
	UserID    string     `validate:"required"`
	Type      StatusType `validate:"required"`
	Level     int        `validate:"gte=1,lte=5"`
	Message   string     `validate:"max=280"`
	Timestamp time.Time
}

// A Reaction is a single emoji reaction of a user to a piece of content.
type Reaction struct {
	ID        string
	PartyID   string
	TargetID  string
	UserID    string
	Emoji     string
	CreatedAt time.Time
}

// Counts is one consistent snapshot of the inputs of the engagement score.
type Counts struct {
	Guests    int
	Media     int
	Comments  int
	Reactions int
	// Statuses is the number of users with a live vibe status.
	Statuses int
	// VibeSum is the sum of the levels of the live vibe statuses.
	VibeSum int
}

// AvgVibe returns the mean vibe level, or 0 when nobody posted a vibe.
func (c Counts) AvgVibe() float64 {
	if c.Statuses == 0 {
		return 0
	}
	return float64(c.VibeSum) / float64(c.Statuses)
}
