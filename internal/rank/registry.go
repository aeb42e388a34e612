package rank

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Factory creates a fitter from a validated configuration.
type Factory func(config Config) (ports.Fitter, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		MethodPlackettLuce: func(c Config) (ports.Fitter, error) { return NewPlackettLuce(c) },
		MethodBradleyTerry: func(c Config) (ports.Fitter, error) { return NewBradleyTerry(c) },
		MethodFrequency:    func(c Config) (ports.Fitter, error) { return NewFrequency(c) },
	}
)

// RegisterFactory adds or replaces the factory for a method name.
func RegisterFactory(method string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[method] = factory
}

// Methods returns the registered method names in sorted order.
func Methods() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for m := range factories {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// New returns the fitter registered for config.Method.
func New(config Config) (ports.Fitter, error) {
	factoriesMu.RLock()
	factory, ok := factories[config.Method]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMethod, config.Method)
	}
	return factory(config)
}
