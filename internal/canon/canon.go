// Package canon maps brand aliases onto canonical names before any
// counting. The alias table is loaded once and never mutated afterwards.
package canon

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var (
	_        ports.Canonicalizer = (*Table)(nil)
	validate                     = validator.New()
)

// Config describes an alias table.
type Config struct {
	// Aliases maps a raw spelling to its canonical name.
	Aliases map[string]string `yaml:"aliases" json:"aliases" validate:"dive,keys,required,endkeys,required"`

	// FoldCase enables matching after Unicode NFKC normalization and case
	// folding when no exact alias exists.
	FoldCase bool `yaml:"fold_case" json:"fold_case"`

	// FuzzyDistance snaps unknown names onto a canonical name within this
	// Levenshtein distance of the folded forms. Zero disables it.
	FuzzyDistance int `yaml:"fuzzy_distance" json:"fuzzy_distance" validate:"min=0,max=5"`
}

// DefaultAliases returns the built-in alias set.
func DefaultAliases() map[string]string {
	return map[string]string{
		"P&G":                "Procter & Gamble",
		"Procter and Gamble": "Procter & Gamble",
	}
}

// DefaultConfig returns the built-in aliases with case folding enabled.
func DefaultConfig() Config {
	return Config{Aliases: DefaultAliases(), FoldCase: true}
}

// LoadConfig reads an alias table from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read alias file: %w", err)
	}
	cfg := Config{FoldCase: true}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	return cfg, nil
}

// Table is an immutable canonicalizer. It is safe for concurrent use.
type Table struct {
	exact  map[string]string
	folded map[string]string
	// targets holds canonical names keyed by folded form, sorted by key.
	targets []target
	fold    bool
	fuzzy   int
}

type target struct {
	key  string
	name string
}

// New builds a table from config. Canonical names map to themselves so
// differently cased spellings of a canonical name also collapse.
func New(config Config) (*Table, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	t := &Table{
		exact:  make(map[string]string, len(config.Aliases)),
		folded: make(map[string]string, len(config.Aliases)),
		fold:   config.FoldCase,
		fuzzy:  config.FuzzyDistance,
	}
	canonical := make(map[string]string)
	for alias, name := range config.Aliases {
		alias, name = strings.TrimSpace(alias), strings.TrimSpace(name)
		t.exact[alias] = name
		canonical[Fold(name)] = name
	}
	for alias, name := range t.exact {
		key := Fold(alias)
		if prev, ok := t.folded[key]; ok && prev != name {
			return nil, fmt.Errorf("alias %q folds onto both %q and %q", alias, prev, name)
		}
		t.folded[key] = name
	}
	for key, name := range canonical {
		if _, ok := t.folded[key]; !ok {
			t.folded[key] = name
		}
		t.targets = append(t.targets, target{key: key, name: name})
	}
	sort.Slice(t.targets, func(i, j int) bool { return t.targets[i].key < t.targets[j].key })
	return t, nil
}

// Fold normalizes a name for comparison: NFKC, Unicode case folding and
// collapsed internal whitespace.
func Fold(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Canonical returns the canonical spelling of name, or the trimmed name
// itself when no alias applies.
func (t *Table) Canonical(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	if c, ok := t.exact[name]; ok {
		return c
	}
	if !t.fold {
		return name
	}
	key := Fold(name)
	if c, ok := t.folded[key]; ok {
		return c
	}
	if t.fuzzy > 0 {
		best, bestDist := "", t.fuzzy+1
		for _, tg := range t.targets {
			if d := levenshtein.ComputeDistance(key, tg.key); d < bestDist {
				best, bestDist = tg.name, d
			}
		}
		if best != "" {
			return best
		}
	}
	return name
}

// List canonicalizes every identifier of l, preserving order.
func (t *Table) List(l domain.RankedList) domain.RankedList {
	out := make(domain.RankedList, len(l))
	for i, item := range l {
		out[i] = t.Canonical(item)
	}
	return out
}

// Len returns the number of exact aliases.
func (t *Table) Len() int { return len(t.exact) }
