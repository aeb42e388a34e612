package probe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ahrav/go-consensus/internal/domain"
)

// ReadEntities decodes one entity per JSON line. Blank lines, lines that
// are not JSON objects, and entities without a name or locales are skipped.
func ReadEntities(r io.Reader, logger *slog.Logger) ([]domain.Entity, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var out []domain.Entity
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e domain.Entity
		if err := json.Unmarshal(raw, &e); err != nil {
			logger.Debug("skipping malformed entity", "line", line, "error", err)
			continue
		}
		if e.Name == "" || len(e.Locales) == 0 {
			logger.Debug("skipping entity without name or locales", "line", line)
			continue
		}
		if e.PopularityBin == "" {
			e.PopularityBin = domain.PopularityTorso
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("scan entities: %w", err)
	}
	return out, nil
}

// ReadEntitiesFile opens path and reads it with ReadEntities.
func ReadEntitiesFile(path string, logger *slog.Logger) ([]domain.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open entities: %w", err)
	}
	defer f.Close()
	return ReadEntities(f, logger)
}
