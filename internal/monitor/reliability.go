// Package monitor decides when enough lists have been collected for one
// (entity, locale) context by checking split-half agreement of the top-k.
package monitor

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-consensus/internal/domain"
)

var validate = validator.New()

// Config controls the adaptive stopping rule.
type Config struct {
	// StopEvery is the check cadence in lists. Zero disables stopping.
	StopEvery int `yaml:"stop_every" json:"stop_every" validate:"min=0"`

	// Threshold is the minimum overlap@k that counts as a pass.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"gt=0,lte=1"`

	// K is the top-k size compared between halves.
	K int `yaml:"k" json:"k" validate:"min=1"`

	// RequiredPasses is the number of consecutive passing checks needed.
	RequiredPasses int `yaml:"required_passes" json:"required_passes" validate:"min=1"`
}

// DefaultConfig checks every 10 lists for two consecutive overlap@3 >= 0.8.
func DefaultConfig() Config {
	return Config{
		StopEvery:      10,
		Threshold:      0.8,
		K:              3,
		RequiredPasses: 2,
	}
}

// Decision is the outcome of observing one list count.
type Decision struct {
	// Checked is false when done was not on a check boundary.
	Checked bool

	// Overlap is the split-half overlap@k of this check.
	Overlap float64

	// Passes is the consecutive pass count after this check.
	Passes int

	// Stop is true once Passes reaches the required count.
	Stop bool

	// Reason describes the stopping check, e.g. "overlap@3=1".
	Reason string
}

// Monitor tracks consecutive passing checks for a single context. It is not
// safe for concurrent use; each collection context owns one monitor.
type Monitor struct {
	config Config
	passes int
}

// New validates config and returns a monitor with zero passes.
func New(config Config) (*Monitor, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &Monitor{config: config}, nil
}

// Due reports whether done lists fall on a check boundary.
func (m *Monitor) Due(done int) bool {
	every := m.config.StopEvery
	return every > 0 && done%every == 0 && done >= 2*every
}

// Observe runs a check if done is on a boundary. recent must hold the
// context's lists in ascending sequence order; only the last done entries
// are used. A failing check resets the pass counter to zero.
func (m *Monitor) Observe(done int, recent []domain.RankedList) Decision {
	if !m.Due(done) {
		return Decision{Passes: m.passes}
	}
	if len(recent) > done {
		recent = recent[len(recent)-done:]
	}

	overlap := SplitHalfOverlap(recent, m.config.K)
	if overlap >= m.config.Threshold {
		m.passes++
	} else {
		m.passes = 0
	}

	d := Decision{Checked: true, Overlap: overlap, Passes: m.passes}
	if m.passes >= m.config.RequiredPasses {
		d.Stop = true
		d.Reason = fmt.Sprintf("overlap@%d=%s", m.config.K, strconv.FormatFloat(overlap, 'g', -1, 64))
	}
	return d
}

// Passes returns the current consecutive pass count.
func (m *Monitor) Passes() int { return m.passes }

// Reset clears the pass counter.
func (m *Monitor) Reset() { m.passes = 0 }

// SplitHalfOverlap splits lists by position parity (even to A, odd to B),
// takes each half's top-k under graded scoring, and returns
// |topA ∩ topB| / k. It is a pure function of its input.
func SplitHalfOverlap(lists []domain.RankedList, k int) float64 {
	if k <= 0 {
		return 0
	}
	var a, b []domain.RankedList
	for i, l := range lists {
		if i%2 == 0 {
			a = append(a, l)
		} else {
			b = append(b, l)
		}
	}
	topA := TopK(a, k)
	topB := TopK(b, k)
	if len(topA) == 0 || len(topB) == 0 {
		return 0
	}

	inA := make(map[string]struct{}, len(topA))
	for _, item := range topA {
		inA[item] = struct{}{}
	}
	var common int
	for _, item := range topB {
		if _, ok := inA[item]; ok {
			common++
		}
	}
	return float64(common) / float64(k)
}

// TopK ranks items by graded score, sum over lists of max(0, len - pos),
// and returns the best k. Ties go to the item seen first, then to the
// lexically smaller identifier.
func TopK(lists []domain.RankedList, k int) []string {
	score := make(map[string]float64)
	first := make(map[string]int)
	seen := 0
	for _, l := range lists {
		l = l.Dedupe()
		for pos, item := range l {
			if _, ok := first[item]; !ok {
				first[item] = seen
			}
			seen++
			if g := len(l) - pos; g > 0 {
				score[item] += float64(g)
			}
		}
	}

	items := make([]string, 0, len(first))
	for item := range first {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		x, y := items[i], items[j]
		if score[x] != score[y] {
			return score[x] > score[y]
		}
		if first[x] != first[y] {
			return first[x] < first[y]
		}
		return x < y
	})
	if len(items) > k {
		items = items[:k]
	}
	return items
}
