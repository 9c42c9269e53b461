package classifier

import "github.com/leonardotrapani/neurotype/internal/eeg"

// Aggregate returns the most frequent symbol in results. Ties go to the
// symbol seen first. ok is false for empty input.
func Aggregate(results []eeg.ClassificationResult) (sym rune, ok bool) {
	if len(results) == 0 {
		return 0, false
	}
	counts := make(map[rune]int, len(results))
	order := make([]rune, 0, len(results))
	for _, r := range results {
		if counts[r.Symbol] == 0 {
			order = append(order, r.Symbol)
		}
		counts[r.Symbol]++
	}
	best := order[0]
	for _, s := range order[1:] {
		if counts[s] > counts[best] {
			best = s
		}
	}
	return best, true
}
