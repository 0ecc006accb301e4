package challenge

import (
	"fmt"
	"math"
	"time"

	"github.com/focusnest/challenge-service/internal/streak"
)

// OutcomeKind names the result of finalizing a day.
type OutcomeKind string

const (
	OutcomeDayCompleted   OutcomeKind = "day_completed"
	OutcomeCycleCompleted OutcomeKind = "cycle_completed"
)

// Outcome describes a finalized day. Challenge holds the advanced state.
type Outcome struct {
	Challenge Challenge     `json:"challenge"`
	Kind      OutcomeKind   `json:"kind"`
	Day       int           `json:"day"`
	Perfect   bool          `json:"perfect"`
	Streak    streak.Result `json:"streak"`
	// Archived is set when the cycle finished.
	Archived *HistoryEntry `json:"archived,omitempty"`
}

// CompleteDay finalizes the current day of c using the live task values. The day is
// always marked completed; it is marked perfect when every task met its target. On
// the last day the cycle is archived and progress restarts at day 1. c is not modified.
func CompleteDay(c Challenge, live []float64, now time.Time) (Outcome, error) {
	if c.Progress.Finished(c.Duration) {
		return Outcome{}, ErrCycleFinished
	}
	if len(live) != len(c.Tasks) {
		return Outcome{}, fmt.Errorf("%w: expected %d task values, got %d", ErrInvalidInput, len(c.Tasks), len(live))
	}

	perfect := true
	for i, v := range live {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Outcome{}, fmt.Errorf("%w: task %d value must be a non-negative number", ErrInvalidInput, i)
		}
		if !c.Tasks[i].Met(v) {
			perfect = false
		}
	}

	next := c.normalized()
	day := next.Progress.Day

	next.Progress.CompletedDays = addDay(next.Progress.CompletedDays, day)
	if perfect {
		next.Progress.PerfectDays = addDay(next.Progress.PerfectDays, day)
	}
	result := streak.Calculate(next.Progress.PerfectDays)
	next.Progress.LongestStreak = result.Longest
	next.UpdatedAt = now

	out := Outcome{Kind: OutcomeDayCompleted, Day: day, Perfect: perfect, Streak: result}

	if day == next.Duration {
		entry := HistoryEntry{
			CompletedAt:      now,
			LongestStreak:    result.Longest,
			PerfectDaysCount: len(next.Progress.PerfectDays),
		}
		if len(next.Progress.Photos) > 0 {
			entry.Photos = next.Progress.Photos
		}
		next.History = append(next.History, entry)
		next.TotalCompletions++
		next.Progress = NewProgress()
		out.Kind = OutcomeCycleCompleted
		out.Archived = &entry
	} else {
		next.Progress.Day = day + 1
	}

	out.Challenge = next
	return out, nil
}
