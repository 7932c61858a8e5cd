// Package score computes the engagement ("heat") score of a party.
//
// The score is a pure function of one snapshot of party counts. It is
// recomputed on every query rather than maintained incrementally, so a
// score can always be reproduced from the inputs that produced it.
package score

import (
	"math"

	"github.com/GetStream/party-engagement/party"
)

// Weights of each input.
const (
	GuestWeight    = 10
	MediaWeight    = 25
	CommentWeight  = 5
	StatusWeight   = 8
	ReactionWeight = 2
	VibeWeight     = 15
)

// Heat band lower bounds. A total below the first bound is heat level 1.
var heatBands = []int64{100, 300, 600, 1000}

// Inputs is a snapshot of the counts the score is computed from.
type Inputs struct {
	Guests    int
	Media     int
	Comments  int
	Statuses  int
	Reactions int
	AvgVibe   float64
}

// FromCounts converts a counts snapshot into score inputs.
func FromCounts(c party.Counts) Inputs {
	return Inputs{
		Guests:    c.Guests,
		Media:     c.Media,
		Comments:  c.Comments,
		Statuses:  c.Statuses,
		Reactions: c.Reactions,
		AvgVibe:   c.AvgVibe(),
	}
}

// A Score is the weighted engagement score with its components.
type Score struct {
	GuestScore    int64 `json:"guest_score"`
	MediaScore    int64 `json:"media_score"`
	CommentScore  int64 `json:"comment_score"`
	StatusScore   int64 `json:"status_score"`
	ReactionScore int64 `json:"reaction_score"`
	VibeScore     int64 `json:"vibe_score"`
	Total         int64 `json:"total"`
	HeatLevel     int   `json:"heat_level"`
}

// Compute returns the score for in. It fails only on malformed inputs:
// negative counts or an average vibe outside [0, 5].
func Compute(in Inputs) (Score, error) {
	if err := validate(in); err != nil {
		return Score{}, err
	}

	s := Score{
		GuestScore:    int64(in.Guests) * GuestWeight,
		MediaScore:    int64(in.Media) * MediaWeight,
		CommentScore:  int64(in.Comments) * CommentWeight,
		StatusScore:   int64(in.Statuses) * StatusWeight,
		ReactionScore: int64(in.Reactions) * ReactionWeight,
		VibeScore:     int64(math.Round(in.AvgVibe * VibeWeight * float64(in.Statuses+1))),
	}
	s.Total = s.GuestScore + s.MediaScore + s.CommentScore + s.StatusScore + s.ReactionScore + s.VibeScore
	s.HeatLevel = HeatLevel(s.Total)
	return s, nil
}

// HeatLevel maps a total onto the discrete heat levels 1 to 5.
func HeatLevel(total int64) int {
	level := 1
	for _, lower := range heatBands {
		if total < lower {
			break
		}
		level++
	}
	return level
}

func validate(in Inputs) error {
	counts := []struct {
		field string
		n     int
	}{
		{"Guests", in.Guests},
		{"Media", in.Media},
		{"Comments", in.Comments},
		{"Statuses", in.Statuses},
		{"Reactions", in.Reactions},
	}
	for _, c := range counts {
		if c.n < 0 {
			return party.NewValidationError(c.field, "must not be negative, got %d", c.n)
		}
	}
	if math.IsNaN(in.AvgVibe) || in.AvgVibe < 0 || in.AvgVibe > party.MaxLevel {
		return party.NewValidationError("AvgVibe", "must be within [0, %d], got %v", party.MaxLevel, in.AvgVibe)
	}
	return nil
}
