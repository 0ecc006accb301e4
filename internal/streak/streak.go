// Package streak computes consecutive-day runs over a set of day numbers.
package streak

import "slices"

// Result holds the run ending at the highest day and the longest run overall.
type Result struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Calculate walks the sorted, de-duplicated days once. The argument is never modified.
func Calculate(days []int) Result {
	if len(days) == 0 {
		return Result{}
	}

	sorted := slices.Clone(days)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	run, longest := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1]+1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	return Result{Current: run, Longest: longest}
}
