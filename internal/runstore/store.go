// Package runstore keeps a SQLite history of run reports.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/foodbank-alloc/fbdam/api/v1alpha1"
	"github.com/foodbank-alloc/fbdam/internal/logging"
)

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Record is the summary row of one run.
type Record struct {
	UID            string
	Name           string
	Scenario       string
	Solver         string
	Status         string
	Feasible       bool
	Objective      *float64
	ElapsedSeconds float64
	Error          string
	StartedAt      time.Time
}

// ListOptions filters List.
type ListOptions struct {
	// Scenario restricts the list to one scenario name.
	Scenario string
	// Limit caps the number of rows; zero means DefaultListLimit.
	Limit int
}

// Store is a run history backed by SQLite. It is safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	// one writer at a time; WAL keeps readers unblocked
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create run store schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("record schema version: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the report keyed by its UID.
func (s *Store) Save(ctx context.Context, r *v1alpha1.RunReport) error {
	if r.UID == "" {
		return fmt.Errorf("save run %q: missing uid", r.Name)
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run %q: %w", r.Name, err)
	}

	rec := summarize(r)
	var objective sql.NullFloat64
	if rec.Objective != nil {
		objective = sql.NullFloat64{Float64: *rec.Objective, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (uid, name, scenario, solver, status, feasible, objective, elapsed_seconds, error, started_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			scenario = excluded.scenario,
			solver = excluded.solver,
			status = excluded.status,
			feasible = excluded.feasible,
			objective = excluded.objective,
			elapsed_seconds = excluded.elapsed_seconds,
			error = excluded.error,
			started_at = excluded.started_at,
			report = excluded.report
	`, rec.UID, rec.Name, rec.Scenario, rec.Solver, rec.Status, rec.Feasible, objective,
		rec.ElapsedSeconds, rec.Error, rec.StartedAt.Format(time.RFC3339Nano), string(doc))
	if err != nil {
		return fmt.Errorf("save run %q: %w", r.Name, err)
	}
	logging.FromContext(ctx).V(logging.DEBUG).Info("Run recorded", "run", r.Name, "uid", rec.UID)
	return nil
}

// Get returns the full report for a run UID or run name.
func (s *Store) Get(ctx context.Context, key string) (*v1alpha1.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM runs WHERE uid = ? OR name = ? ORDER BY started_at DESC LIMIT 1`, key, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", key, err)
	}
	var r v1alpha1.RunReport
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", key, err)
	}
	return &r, nil
}

// List returns run summaries, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT uid, name, scenario, solver, status, feasible, objective, elapsed_seconds, error, started_at FROM runs`
	args := []any{}
	if opts.Scenario != "" {
		query += ` WHERE scenario = ?`
		args = append(args, opts.Scenario)
	}
	query += ` ORDER BY started_at DESC, name DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			objective sql.NullFloat64
			started   string
		)
		if err := rows.Scan(&rec.UID, &rec.Name, &rec.Scenario, &rec.Solver, &rec.Status, &rec.Feasible,
			&objective, &rec.ElapsedSeconds, &rec.Error, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if objective.Valid {
			v := objective.Float64
			rec.Objective = &v
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at %q: %w", rec.Name, started, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func summarize(r *v1alpha1.RunReport) Record {
	rec := Record{
		UID:       string(r.UID),
		Name:      r.Name,
		Scenario:  r.Spec.Scenario,
		Solver:    r.Spec.Solver.Name,
		Feasible:  r.Feasible(),
		Error:     r.Status.Error,
		StartedAt: r.Status.StartTime.UTC(),
	}
	if res := r.Status.Result; res != nil {
		rec.Solver = res.Solver
		rec.Status = res.Status
		rec.Objective = res.ObjectiveValue
		rec.ElapsedSeconds = res.ElapsedSeconds
		if rec.Error == "" {
			rec.Error = res.ErrorMessage
		}
	}
	return rec
}
