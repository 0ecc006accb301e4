package challenge

import (
	"maps"
	"math"
	"slices"

	"github.com/focusnest/challenge-service/internal/streak"
)

// NewProgress returns the state of a fresh cycle.
func NewProgress() Progress {
	return Progress{
		Day:           1,
		CompletedDays: []int{},
		PerfectDays:   []int{},
		Photos:        map[int]string{},
	}
}

// Clone returns a deep copy.
func (p Progress) Clone() Progress {
	out := p
	out.CompletedDays = slices.Clone(p.CompletedDays)
	if out.CompletedDays == nil {
		out.CompletedDays = []int{}
	}
	out.PerfectDays = slices.Clone(p.PerfectDays)
	if out.PerfectDays == nil {
		out.PerfectDays = []int{}
	}
	out.Photos = maps.Clone(p.Photos)
	if out.Photos == nil {
		out.Photos = map[int]string{}
	}
	return out
}

// Finished reports whether every day of the cycle has been finalized.
func (p Progress) Finished(duration int) bool {
	return p.Day > duration
}

// normalize repairs stored progress: sorted unique day sets, a day of at least 1,
// perfect days contained in completed days and a recomputed longest streak.
func (p Progress) normalize() Progress {
	out := p.Clone()
	if out.Day < 1 {
		out.Day = 1
	}
	out.PerfectDays = sortedUnique(out.PerfectDays)
	out.CompletedDays = sortedUnique(append(out.CompletedDays, out.PerfectDays...))
	out.LongestStreak = streak.Calculate(out.PerfectDays).Longest
	return out
}

// CompletionPercent is the share of the cycle's days finalized, rounded to an integer.
func CompletionPercent(p Progress, duration int) int {
	if duration <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(len(p.CompletedDays)) / float64(duration)))
}

// CurrentStreak is the run of perfect days ending at the highest perfect day.
func CurrentStreak(p Progress) int {
	return streak.Calculate(p.PerfectDays).Current
}

// BestEverStreak is the largest longest-streak across the current cycle and every
// archived cycle.
func BestEverStreak(p Progress, history []HistoryEntry) int {
	best := p.LongestStreak
	for _, h := range history {
		if h.LongestStreak > best {
			best = h.LongestStreak
		}
	}
	return best
}

// BestEverStreak is a convenience wrapper over the package function.
func (c Challenge) BestEverStreak() int {
	return BestEverStreak(c.Progress, c.History)
}

// Clone returns a deep copy of the challenge.
func (c Challenge) Clone() Challenge {
	out := c
	out.Tasks = slices.Clone(c.Tasks)
	out.Progress = c.Progress.Clone()
	out.History = make([]HistoryEntry, len(c.History))
	for i, h := range c.History {
		h.Photos = maps.Clone(h.Photos)
		out.History[i] = h
	}
	return out
}

// normalized returns a deep copy with repaired progress.
func (c Challenge) normalized() Challenge {
	out := c.Clone()
	out.Progress = c.Progress.normalize()
	return out
}

func sortedUnique(days []int) []int {
	out := slices.Clone(days)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []int{}
	}
	return out
}

func addDay(days []int, day int) []int {
	if slices.Contains(days, day) {
		return days
	}
	return sortedUnique(append(days, day))
}
