// Package rank implements the list scoring models: Bradley-Terry over
// pairwise win counts, Plackett-Luce over ordered lists, and a top-k
// frequency baseline. All fitters are stateless and safe for concurrent use.
package rank

import (
	"math"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"gonum.org/v1/gonum/floats"

	"github.com/ahrav/go-consensus/internal/domain"
)

// Method identifiers accepted by New.
const (
	MethodPlackettLuce = "pl"
	MethodBradleyTerry = "bt"
	MethodFrequency    = "freq"
)

// Defaults shared by the MM fitters.
const (
	DefaultMaxIterations = 200
	DefaultTolerance     = 1e-6
	DefaultAlpha         = 0.2
	DefaultTopK          = 3
)

// worthFloor bounds every worth and denominator away from zero.
const worthFloor = 1e-12

// Package-level validator instance for configuration validation.
var validate = validator.New()

var tracer = otel.Tracer("github.com/ahrav/go-consensus/internal/rank")

// Config holds the parameters of every fitter. Fields that do not apply to
// the selected method are ignored.
type Config struct {
	// Method selects the model: "pl", "bt" or "freq".
	Method string `yaml:"method" json:"method" validate:"required,oneof=pl bt freq"`

	// MaxIterations caps the number of MM updates.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations" validate:"min=1,max=100000"`

	// Tolerance is the max per-item absolute change that counts as converged.
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"gt=0,lt=1"`

	// Alpha is the Plackett-Luce additive smoothing constant. Zero gives the
	// unsmoothed estimator.
	Alpha float64 `yaml:"alpha" json:"alpha" validate:"min=0"`

	// TopK is the prefix length counted by the frequency baseline.
	TopK int `yaml:"top_k" json:"top_k" validate:"min=1"`
}

// DefaultConfig returns a Plackett-Luce configuration with the standard
// iteration cap, tolerance, smoothing and top-k.
func DefaultConfig() Config {
	return Config{
		Method:        MethodPlackettLuce,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
		Alpha:         DefaultAlpha,
		TopK:          DefaultTopK,
	}
}

// index assigns dense positions to the sorted item set.
func index(items []string) map[string]int {
	idx := make(map[string]int, len(items))
	for i, item := range items {
		idx[item] = i
	}
	return idx
}

// renormalize scales w to sum one and returns the max absolute change
// against prev.
func renormalize(w, prev []float64) float64 {
	if total := floats.Sum(w); total > 0 {
		floats.Scale(1/total, w)
	}
	return floats.Distance(w, prev, math.Inf(1))
}

func toVector(items []string, w []float64) domain.WorthVector {
	out := make(domain.WorthVector, len(items))
	for i, item := range items {
		out[item] = w[i]
	}
	return out
}
