package corpus

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var _ ports.ProgressSink = (*ProgressLog)(nil)

// progressHeader is written once, when the log file is empty.
var progressHeader = []string{"entity_id", "entity", "locale", "k_done", "stopped_early", "reason", "timestamp"}

// ProgressLog appends one tab-separated line per finished context.
type ProgressLog struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// OpenProgressLog opens path for appending and writes the header if the
// file is new or empty.
func OpenProgressLog(path string) (*ProgressLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open progress log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat progress log: %w", err)
	}
	w := csv.NewWriter(f)
	w.Comma = '\t'
	if info.Size() == 0 {
		if err := w.Write(progressHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write progress header: %w", err)
		}
		w.Flush()
	}
	return &ProgressLog{file: f, w: w}, nil
}

// Record appends entry and flushes it to disk.
func (p *ProgressLog) Record(_ context.Context, e domain.ProgressEntry) error {
	stopped := "0"
	if e.StoppedEarly {
		stopped = "1"
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.w.Write([]string{
		e.EntityID, e.Entity, e.Locale, strconv.Itoa(e.Done), stopped, e.Reason, ts.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	p.w.Flush()
	return p.w.Error()
}

// Close flushes and closes the file.
func (p *ProgressLog) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.w.Flush()
	if err := p.w.Error(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
