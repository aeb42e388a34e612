package stats

import (
	"sort"

	"github.com/ahrav/go-consensus/internal/domain"
)

// Spearman returns Spearman's rank correlation between two score maps over
// the keys present in both. Keys found in only one map are ignored. Ranks
// follow descending score with ties broken by key, without tie averaging,
// so rho = 1 - 6*sum(d^2) / (n*(n^2-1)). Fewer than two shared keys yield 0.
func Spearman(x, y domain.WorthVector) float64 {
	keys := make([]string, 0, len(x))
	for k := range x {
		if _, ok := y[k]; ok {
			keys = append(keys, k)
		}
	}
	n := len(keys)
	if n < 2 {
		return 0
	}
	sort.Strings(keys)

	rx := ranks(x, keys)
	ry := ranks(y, keys)
	var sumD2 float64
	for _, k := range keys {
		d := rx[k] - ry[k]
		sumD2 += d * d
	}
	nf := float64(n)
	return 1 - 6*sumD2/(nf*(nf*nf-1))
}

// ranks assigns 1..n by descending score over keys, which must be sorted.
func ranks(v domain.WorthVector, keys []string) map[string]float64 {
	ordered := make([]string, len(keys))
	copy(ordered, keys)
	sort.SliceStable(ordered, func(i, j int) bool { return v[ordered[i]] > v[ordered[j]] })

	out := make(map[string]float64, len(ordered))
	for i, k := range ordered {
		out[k] = float64(i + 1)
	}
	return out
}
