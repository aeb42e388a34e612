// Package corpus reads and stores generated lists. Two append-only stores
// are provided: a JSONL file and a SQLite database.
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

const maxLineBytes = 4 << 20

// ReadStats summarizes a JSONL scan.
type ReadStats struct {
	Lines     int
	Records   int
	Malformed int
}

// DecodeRecord parses one JSONL line. A line that is not a JSON object or
// has no list array is reported as domain.ErrMalformedInput.
func DecodeRecord(line []byte) (domain.ProbeRecord, error) {
	var probe struct {
		List json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return domain.ProbeRecord{}, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	if len(probe.List) == 0 || probe.List[0] != '[' {
		return domain.ProbeRecord{}, fmt.Errorf("%w: missing list array", domain.ErrMalformedInput)
	}
	var rec domain.ProbeRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return domain.ProbeRecord{}, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	return rec, nil
}

// ReadRecords decodes every well-formed record from r. Malformed lines are
// skipped, counted and logged at debug level; only I/O errors are returned.
func ReadRecords(r io.Reader, logger *slog.Logger) ([]domain.ProbeRecord, ReadStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		stats   ReadStats
		records []domain.ProbeRecord
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		stats.Lines++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := DecodeRecord(line)
		if err != nil {
			stats.Malformed++
			logger.Debug("skipping malformed record", "line", stats.Lines, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, stats, fmt.Errorf("scan records: %w", err)
	}
	stats.Records = len(records)
	return records, stats, nil
}

// ReadFile opens path and reads it with ReadRecords.
func ReadFile(path string, logger *slog.Logger) ([]domain.ProbeRecord, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ReadStats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadRecords(f, logger)
}

var _ ports.CorpusStore = (*JSONLStore)(nil)

// JSONLStore appends records to a JSON-lines file. Existing records are
// indexed on open so sequence numbers continue monotonically; records
// written without a sequence number get one from their line order.
type JSONLStore struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	seq     int64
	records []domain.ProbeRecord
	byCtx   map[ctxKey][]int
	closed  bool
}

type ctxKey struct{ entity, locale string }

// OpenJSONL opens or creates the file at path. With truncate set any
// existing content is discarded first.
func OpenJSONL(path string, truncate bool, logger *slog.Logger) (*JSONLStore, error) {
	flags := os.O_CREATE | os.O_RDWR | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, ports.NewStoreError("jsonl", "Open", err)
	}

	s := &JSONLStore{path: path, file: f, byCtx: make(map[ctxKey][]int)}
	records, stats, err := ReadRecords(f, logger)
	if err != nil {
		f.Close()
		return nil, ports.NewStoreError("jsonl", "Open", err)
	}
	for _, rec := range records {
		if rec.Seq <= s.seq {
			rec.Seq = s.seq + 1
		}
		s.index(rec)
	}
	if stats.Malformed > 0 && logger != nil {
		logger.Warn("corpus contains malformed lines", "path", path, "malformed", stats.Malformed)
	}
	return s, nil
}

func (s *JSONLStore) index(rec domain.ProbeRecord) {
	s.seq = rec.Seq
	s.records = append(s.records, rec)
	key := ctxKey{rec.Entity, rec.Locale}
	s.byCtx[key] = append(s.byCtx[key], len(s.records)-1)
}

// Append writes rec as one line and returns it with Seq assigned.
func (s *JSONLStore) Append(ctx context.Context, rec domain.ProbeRecord) (domain.ProbeRecord, error) {
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return rec, ports.NewStoreError("jsonl", "Append", ports.ErrStoreClosed)
	}

	rec.Seq = s.seq + 1
	line, err := json.Marshal(rec)
	if err != nil {
		return rec, ports.NewStoreError("jsonl", "Append", err)
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return rec, ports.NewStoreError("jsonl", "Append", err)
	}
	s.index(rec)
	return rec, nil
}

// Recent returns the last n records of the context in sequence order.
func (s *JSONLStore) Recent(ctx context.Context, entity, locale string, n int) ([]domain.ProbeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ports.NewStoreError("jsonl", "Recent", ports.ErrStoreClosed)
	}
	idx := s.byCtx[ctxKey{entity, locale}]
	if n > 0 && len(idx) > n {
		idx = idx[len(idx)-n:]
	}
	out := make([]domain.ProbeRecord, len(idx))
	for i, j := range idx {
		out[i] = s.records[j]
	}
	return out, nil
}

// Count returns the number of records for the context.
func (s *JSONLStore) Count(ctx context.Context, entity, locale string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byCtx[ctxKey{entity, locale}]), nil
}

// All returns every record in sequence order.
func (s *JSONLStore) All(ctx context.Context) ([]domain.ProbeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.ProbeRecord(nil), s.records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Close syncs and closes the file. Closing twice is a no-op.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.file.Sync(), s.file.Close())
}
