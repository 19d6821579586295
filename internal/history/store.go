// Package history provides a SQLite-backed log of generation requests.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/eqplatform/model"
)

// DefaultListLimit is used when List is called without a positive limit.
const DefaultListLimit = 50

// MaxListLimit caps a single List call.
const MaxListLimit = 500

// ErrNotConfigured is returned when a nil or closed store is used.
var ErrNotConfigured = errors.New("history storage is not configured")

const schema = `
CREATE TABLE IF NOT EXISTS renders (
    id             TEXT PRIMARY KEY,
    request_id     TEXT NOT NULL DEFAULT '',
    operation      TEXT NOT NULL,
    parts          TEXT NOT NULL,
    format         TEXT NOT NULL,
    latitude_deg   REAL NOT NULL,
    bearing_angle  REAL NOT NULL,
    parameters     TEXT NOT NULL,
    failed_parts   TEXT NOT NULL DEFAULT '',
    error          TEXT NOT NULL DEFAULT '',
    elapsed_ms     INTEGER NOT NULL,
    created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS renders_created_at ON renders (created_at DESC);
`

// Record is one generation request.
type Record struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id,omitempty"`
	// Operation is the endpoint or command that produced the record, e.g.
	// "generate-template" or "generate-all-parts".
	Operation    string             `json:"operation"`
	Parts        []string           `json:"parts"`
	Format       string             `json:"format"`
	LatitudeDeg  float64            `json:"latitude_deg"`
	BearingAngle float64            `json:"bearing_angle"`
	Parameters   model.ParameterSet `json:"parameters"`
	FailedParts  []string           `json:"failed_parts,omitempty"`
	Error        string             `json:"error,omitempty"`
	Elapsed      time.Duration      `json:"elapsed"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Store persists records in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite history store and creates its schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record inserts rec. A zero CreatedAt is set to now.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("record id is required")
	}
	if strings.TrimSpace(rec.Operation) == "" {
		return fmt.Errorf("record operation is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO renders (
		   id, request_id, operation, parts, format,
		   latitude_deg, bearing_angle, parameters,
		   failed_parts, error, elapsed_ms, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.RequestID,
		rec.Operation,
		strings.Join(rec.Parts, ","),
		rec.Format,
		rec.LatitudeDeg,
		rec.BearingAngle,
		string(params),
		strings.Join(rec.FailedParts, ","),
		rec.Error,
		rec.Elapsed.Milliseconds(),
		toMillis(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record render: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, request_id, operation, parts, format,
		        latitude_deg, bearing_angle, parameters,
		        failed_parts, error, elapsed_ms, created_at
		   FROM renders
		  ORDER BY created_at DESC, rowid DESC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list renders: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec       Record
			parts     string
			params    string
			failed    string
			elapsedMS int64
			createdAt int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Operation,
			&parts,
			&rec.Format,
			&rec.LatitudeDeg,
			&rec.BearingAngle,
			&params,
			&failed,
			&rec.Error,
			&elapsedMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("list renders: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &rec.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters of %s: %w", rec.ID, err)
		}
		rec.Parts = splitList(parts)
		rec.FailedParts = splitList(failed)
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		rec.CreatedAt = fromMillis(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list renders: %w", err)
	}
	return records, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
