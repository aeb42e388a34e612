package ports

import (
	"context"

	"github.com/ahrav/go-consensus/internal/domain"
)

// Fitter turns a set of ranked lists into one score per item.
// Implementations must be safe for concurrent use: the bootstrap calls Fit
// from several goroutines with disjoint inputs.
type Fitter interface {
	// Name returns the method identifier (pl, bt, freq).
	Name() string

	// Fit scores every item that appears in lists. An empty input returns
	// domain.ErrEmptyCorpus.
	Fit(ctx context.Context, lists []domain.RankedList) (domain.FitResult, error)
}

// GenerateRequest describes one list to be produced by a Generator.
type GenerateRequest struct {
	Entity         string
	Disambiguation string
	Locale         string
	N              int
	Temperature    float64
}

// Generator produces one candidate ranked list for a context.
// A response that cannot be parsed is reported with domain.ErrMalformedOutput
// so callers can distinguish it from transport failures.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]domain.ListItem, error)
}

// ListValidator checks a generated list. One invalid element invalidates
// the whole list.
type ListValidator interface {
	Validate(items []domain.ListItem) error
}

// ValidationObserver is notified of every rejected element.
type ValidationObserver interface {
	OnInvalid(index int, item domain.ListItem, reason string)
}

// Canonicalizer maps raw identifiers onto canonical names.
type Canonicalizer interface {
	Canonical(name string) string

	// List canonicalizes every identifier of l, preserving order.
	List(l domain.RankedList) domain.RankedList
}
