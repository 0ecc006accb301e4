package challenge

import (
	"math"
	"slices"
	"time"
)

// TaskView is a task row with its live value for the current day.
type TaskView struct {
	Index   int      `json:"index"`
	Name    string   `json:"name"`
	Unit    string   `json:"unit,omitempty"`
	Target  float64  `json:"target"`
	Kind    TaskKind `json:"kind"`
	Value   float64  `json:"value"`
	Percent int      `json:"percent"`
	Met     bool     `json:"met"`
}

// DayView is one cell of the day grid.
type DayView struct {
	Day       int    `json:"day"`
	Completed bool   `json:"completed"`
	Perfect   bool   `json:"perfect"`
	Current   bool   `json:"current"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// HistoryView is an archived cycle with resolved photo links.
type HistoryView struct {
	CompletedAt      time.Time      `json:"completed_at"`
	LongestStreak    int            `json:"longest_streak"`
	PerfectDaysCount int            `json:"perfect_days_count"`
	Photos           map[int]string `json:"photos,omitempty"`
}

// View is the read model rendered to clients. Every derived number is recomputed
// from the challenge and never stored.
type View struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Day                int           `json:"day"`
	Duration           int           `json:"duration"`
	Finished           bool          `json:"finished"`
	CompletionPercent  int           `json:"completion_percent"`
	CompletedDaysCount int           `json:"completed_days_count"`
	PerfectDaysCount   int           `json:"perfect_days_count"`
	CurrentStreak      int           `json:"current_streak"`
	LongestStreak      int           `json:"longest_streak"`
	BestEverStreak     int           `json:"best_ever_streak"`
	TotalCompletions   int           `json:"total_completions"`
	CanComplete        bool          `json:"can_complete"`
	WouldBePerfect     bool          `json:"would_be_perfect"`
	Tasks              []TaskView    `json:"tasks"`
	Days               []DayView     `json:"days"`
	History            []HistoryView `json:"history"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// URLResolver turns a stored photo reference into a client-usable URL. It may return
// "" for references that cannot be resolved.
type URLResolver func(ref string) string

// BuildView renders c with the given live task values; nil live means all zeros.
func BuildView(c Challenge, live []float64, resolve URLResolver) View {
	c = c.normalized()
	p := c.Progress
	finished := p.Finished(c.Duration)
	if resolve == nil {
		resolve = func(ref string) string { return ref }
	}

	tasks := make([]TaskView, len(c.Tasks))
	allMet := true
	for i, t := range c.Tasks {
		var v float64
		if i < len(live) {
			v = live[i]
		}
		met := t.Met(v)
		if !met {
			allMet = false
		}
		tasks[i] = TaskView{
			Index:   i,
			Name:    t.Name,
			Unit:    t.Unit,
			Target:  t.Target,
			Kind:    t.Kind(),
			Value:   v,
			Percent: taskPercent(v, t.Target),
			Met:     met,
		}
	}

	days := make([]DayView, c.Duration)
	for i := range days {
		d := i + 1
		days[i] = DayView{
			Day:       d,
			Completed: slices.Contains(p.CompletedDays, d),
			Perfect:   slices.Contains(p.PerfectDays, d),
			Current:   !finished && d == p.Day,
		}
		if ref, ok := p.Photos[d]; ok {
			days[i].PhotoURL = resolve(ref)
		}
	}

	history := make([]HistoryView, len(c.History))
	for i, h := range c.History {
		hv := HistoryView{CompletedAt: h.CompletedAt, LongestStreak: h.LongestStreak, PerfectDaysCount: h.PerfectDaysCount}
		if len(h.Photos) > 0 {
			hv.Photos = make(map[int]string, len(h.Photos))
			for day, ref := range h.Photos {
				hv.Photos[day] = resolve(ref)
			}
		}
		history[i] = hv
	}

	return View{
		ID:                 c.ID,
		Name:               c.Name,
		Day:                p.Day,
		Duration:           c.Duration,
		Finished:           finished,
		CompletionPercent:  CompletionPercent(p, c.Duration),
		CompletedDaysCount: len(p.CompletedDays),
		PerfectDaysCount:   len(p.PerfectDays),
		CurrentStreak:      CurrentStreak(p),
		LongestStreak:      p.LongestStreak,
		BestEverStreak:     BestEverStreak(p, c.History),
		TotalCompletions:   c.TotalCompletions,
		CanComplete:        !finished,
		WouldBePerfect:     !finished && allMet,
		Tasks:              tasks,
		Days:               days,
		History:            history,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

func taskPercent(value, target float64) int {
	if target <= 0 {
		return 100
	}
	pct := int(math.Round(100 * value / target))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}
