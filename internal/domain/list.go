package domain

import (
	"math"
	"sort"
)

// RankedList is an ordered sequence of item identifiers, best first.
// Lists may be partial and may repeat an identifier; fitters always work
// on the deduplicated form.
type RankedList []string

// Dedupe returns a copy of the list keeping only the first occurrence of
// each identifier. Empty identifiers are dropped.
func (l RankedList) Dedupe() RankedList {
	seen := make(map[string]struct{}, len(l))
	out := make(RankedList, 0, len(l))
	for _, item := range l {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Items returns the sorted set of distinct identifiers across lists.
func Items(lists []RankedList) []string {
	seen := make(map[string]struct{})
	for _, l := range lists {
		for _, item := range l {
			if item != "" {
				seen[item] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for item := range seen {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// WinMatrix counts how often the row item was ranked above the column item.
// Only positive counts are stored.
type WinMatrix map[string]map[string]float64

// Add increments wins[winner][loser] by n.
func (m WinMatrix) Add(winner, loser string, n float64) {
	row, ok := m[winner]
	if !ok {
		row = make(map[string]float64)
		m[winner] = row
	}
	row[loser] += n
}

// Wins returns the number of times winner beat loser.
func (m WinMatrix) Wins(winner, loser string) float64 {
	return m[winner][loser]
}

// ItemScore pairs an identifier with a score.
type ItemScore struct {
	Item  string  `json:"item"`
	Score float64 `json:"score"`
}

// WorthVector maps identifiers to nonnegative worths. After a
// probabilistic fit the worths sum to one.
type WorthVector map[string]float64

// Normalize rescales the vector in place so its entries sum to one.
// A vector with zero total mass is left unchanged.
func (w WorthVector) Normalize() {
	var total float64
	for _, v := range w {
		total += v
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return
	}
	for k, v := range w {
		w[k] = v / total
	}
}

// Sum returns the total mass of the vector.
func (w WorthVector) Sum() float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	return total
}

// Clone returns an independent copy.
func (w WorthVector) Clone() WorthVector {
	out := make(WorthVector, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Ranked returns entries sorted by descending score, ties broken by
// lexical identifier so output order is deterministic.
func (w WorthVector) Ranked() []ItemScore {
	out := make([]ItemScore, 0, len(w))
	for k, v := range w {
		out = append(out, ItemScore{Item: k, Score: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Item < out[j].Item
	})
	return out
}

// Order returns identifiers in Ranked order.
func (w WorthVector) Order() []string {
	ranked := w.Ranked()
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Item
	}
	return out
}

// FitResult is the outcome of fitting one scoring model to a set of lists.
// Hitting the iteration cap is not an error; Converged reports it.
type FitResult struct {
	// Method names the model that produced the worths.
	Method string `json:"method"`

	// Worths holds one score per item seen in the input.
	Worths WorthVector `json:"worths"`

	// Iterations is the number of MM updates performed.
	Iterations int `json:"iterations"`

	// Converged is false when the iteration cap was reached first.
	Converged bool `json:"converged"`

	// MaxDelta is the largest per-item change in the final iteration.
	MaxDelta float64 `json:"max_delta"`
}

// ConfidenceInterval is a percentile interval with Lo <= Hi.
type ConfidenceInterval struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Contains reports whether v lies inside the closed interval.
func (ci ConfidenceInterval) Contains(v float64) bool {
	return v >= ci.Lo && v <= ci.Hi
}
