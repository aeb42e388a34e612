package corpus

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

//go:embed sql/schema.sql
var schemaFS embed.FS

var _ ports.CorpusStore = (*SQLiteStore)(nil)

// SQLiteStore keeps records in a SQLite database. The autoincrement key is
// the record's sequence number.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, ports.NewStoreError("sqlite", "Open", fmt.Errorf("path not specified"))
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ports.NewStoreError("sqlite", "Open", err)
	}
	// A single connection serializes writers and keeps sequence order.
	db.SetMaxOpenConns(1)

	ddl, err := schemaFS.ReadFile("sql/schema.sql")
	if err != nil {
		db.Close()
		return nil, ports.NewStoreError("sqlite", "Open", err)
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		db.Close()
		return nil, ports.NewStoreError("sqlite", "Migrate", err)
	}
	return &SQLiteStore{db: db}, nil
}

const recordColumns = `seq, run_id, entity_id, entity, locale, language, category, disambiguation, list_json, created_at`

// Append inserts rec and returns it with Seq assigned.
func (s *SQLiteStore) Append(ctx context.Context, rec domain.ProbeRecord) (domain.ProbeRecord, error) {
	list, err := json.Marshal(rec.List)
	if err != nil {
		return rec, ports.NewStoreError("sqlite", "Append", err)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO probe_record (run_id, entity_id, entity, locale, language, category, disambiguation, list_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.EntityID, rec.Entity, rec.Locale, rec.Language, rec.Category, rec.Disambiguation,
		string(list), rec.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return rec, ports.NewStoreError("sqlite", "Append", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return rec, ports.NewStoreError("sqlite", "Append", err)
	}
	rec.Seq = seq
	return rec, nil
}

// Recent returns the last n records of the context in ascending sequence order.
func (s *SQLiteStore) Recent(ctx context.Context, entity, locale string, n int) ([]domain.ProbeRecord, error) {
	limit := n
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM (
			SELECT * FROM probe_record WHERE entity = ? AND locale = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, entity, locale, limit)
	if err != nil {
		return nil, ports.NewStoreError("sqlite", "Recent", err)
	}
	return scanRecords(rows)
}

// Count returns the number of records for the context.
func (s *SQLiteStore) Count(ctx context.Context, entity, locale string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM probe_record WHERE entity = ? AND locale = ?`, entity, locale).Scan(&n)
	if err != nil {
		return 0, ports.NewStoreError("sqlite", "Count", err)
	}
	return n, nil
}

// All returns every record in ascending sequence order.
func (s *SQLiteStore) All(ctx context.Context) ([]domain.ProbeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM probe_record ORDER BY seq ASC`)
	if err != nil {
		return nil, ports.NewStoreError("sqlite", "All", err)
	}
	return scanRecords(rows)
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanRecords(rows *sql.Rows) ([]domain.ProbeRecord, error) {
	defer rows.Close()
	var out []domain.ProbeRecord
	for rows.Next() {
		var (
			rec       domain.ProbeRecord
			list      string
			createdAt string
		)
		if err := rows.Scan(&rec.Seq, &rec.RunID, &rec.EntityID, &rec.Entity, &rec.Locale,
			&rec.Language, &rec.Category, &rec.Disambiguation, &list, &createdAt); err != nil {
			return nil, ports.NewStoreError("sqlite", "Scan", err)
		}
		if err := json.Unmarshal([]byte(list), &rec.List); err != nil {
			return nil, ports.NewStoreError("sqlite", "Scan", fmt.Errorf("%w: seq %d: %v", domain.ErrMalformedInput, rec.Seq, err))
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, ports.NewStoreError("sqlite", "Scan", err)
		}
		rec.Timestamp = ts
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("sqlite", "Scan", err)
	}
	return out, nil
}
