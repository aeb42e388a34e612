package canon

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/domain"
)

func TestTable_Canonical(t *testing.T) {
	table, err := New(DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"P&G", "Procter & Gamble"},
		{"Procter and Gamble", "Procter & Gamble"},
		{"procter  AND gamble", "Procter & Gamble"},
		{"PROCTER & GAMBLE", "Procter & Gamble"},
		{"  Acme ", "Acme"},
		{"Unknown Brand", "Unknown Brand"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Canonical(tt.in))
		})
	}
}

func TestTable_ExactOnly(t *testing.T) {
	table, err := New(Config{Aliases: DefaultAliases()})
	require.NoError(t, err)

	assert.Equal(t, "Procter & Gamble", table.Canonical("P&G"))
	assert.Equal(t, "p&g", table.Canonical("p&g"), "folding disabled")
}

func TestTable_Fuzzy(t *testing.T) {
	cfg := Config{
		Aliases:       map[string]string{"Coca Cola": "Coca-Cola"},
		FoldCase:      true,
		FuzzyDistance: 1,
	}
	table, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, "Coca-Cola", table.Canonical("Coca-Colla"), "one edit away")
	assert.Equal(t, "Pepsi", table.Canonical("Pepsi"), "too far from any canonical name")
}

func TestTable_Unicode(t *testing.T) {
	cfg := Config{Aliases: map[string]string{"Nestle": "Nestlé"}, FoldCase: true}
	table, err := New(cfg)
	require.NoError(t, err)

	// Decomposed e + combining acute composes under NFKC.
	assert.Equal(t, "Nestlé", table.Canonical("NESTLE\u0301"))
	assert.Equal(t, "Nestlé", table.Canonical("nestle"))
}

func TestNew_ConflictingFoldedAliases(t *testing.T) {
	cfg := Config{
		Aliases:  map[string]string{"acme": "Acme", "ACME": "Acme Corp"},
		FoldCase: true,
	}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestTable_List(t *testing.T) {
	table, err := New(DefaultConfig())
	require.NoError(t, err)

	got := table.List(domain.RankedList{"P&G", "Acme", "procter and gamble"})
	assert.Equal(t, domain.RankedList{"Procter & Gamble", "Acme", "Procter & Gamble"}, got)
}

func TestTable_ConcurrentUse(t *testing.T) {
	table, err := New(DefaultConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "Procter & Gamble", table.Canonical("p&g"))
			}
		}()
	}
	wg.Wait()
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	content := `
aliases:
  "HP Inc.": "HP"
  "Hewlett-Packard": "HP"
fuzzy_distance: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.FoldCase, "fold_case defaults to true")
	assert.Equal(t, 2, cfg.FuzzyDistance)
	table, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "HP", table.Canonical("hewlett-packard"))
	assert.Equal(t, 2, table.Len())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
