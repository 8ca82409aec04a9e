package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/plantsim/internal/pathutil"
	"github.com/nvandessel/plantsim/internal/signals"
)

// SQLiteHistoryStore implements HistoryStore on a single SQLite file.
type SQLiteHistoryStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteHistoryStore opens (creating if needed) the history database at path.
func NewSQLiteHistoryStore(path string) (*SQLiteHistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", pathutil.RedactPath(path), err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteHistoryStore{db: db, dbPath: path}, nil
}

// Path returns the database file path.
func (s *SQLiteHistoryStore) Path() string {
	return s.dbPath
}

// BeginRun records a new run.
func (s *SQLiteHistoryStore) BeginRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, tick_period_ns, seed, scenario) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), int64(run.TickPeriod), int64(run.Seed), boolToInt(run.Scenario))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRun returns a run by id, or ErrRunNotFound.
func (s *SQLiteHistoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, tick_period_ns, seed, scenario FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// Runs lists runs, newest first.
func (s *SQLiteHistoryStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, tick_period_ns, seed, scenario FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run               Run
		startedAt, period int64
		seed              int64
		scenario          int
	)
	if err := row.Scan(&run.ID, &startedAt, &period, &seed, &scenario); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	run.TickPeriod = time.Duration(period)
	run.Seed = uint64(seed)
	run.Scenario = scenario != 0
	return &run, nil
}

// RecordTick writes every signal of snap in one transaction.
func (s *SQLiteHistoryStore) RecordTick(ctx context.Context, runID string, snap *signals.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (run_id, tick, taken_at, signal, value, data_source, process_efficiency)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, sm := range samplesFromSnapshot(runID, snap) {
		if _, err := stmt.ExecContext(ctx,
			sm.RunID, int64(sm.Tick), sm.Time.UnixNano(), sm.Signal, sm.Value, sm.DataSource, sm.ProcessEfficiency); err != nil {
			return fmt.Errorf("failed to insert sample %s: %w", sm.Signal, err)
		}
	}

	return tx.Commit()
}

// RecordEvent persists one advisory event.
func (s *SQLiteHistoryStore) RecordEvent(ctx context.Context, ev EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, at, kind, signal, step, old_value, new_value, change_percent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Time.UnixNano(), ev.Kind, nullString(ev.Signal), nullString(ev.Step),
		ev.Old, ev.New, ev.ChangePercent)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// History returns samples of one signal, newest first.
func (s *SQLiteHistoryStore) History(ctx context.Context, q HistoryQuery) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.Signal == "" {
		return nil, fmt.Errorf("signal is required")
	}

	query := `SELECT run_id, tick, taken_at, signal, value, data_source, process_efficiency
		FROM samples WHERE signal = ?`
	args := []any{q.Signal}
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if !q.Since.IsZero() {
		query += ` AND taken_at >= ?`
		args = append(args, q.Since.UnixNano())
	}
	query += ` ORDER BY taken_at DESC, id DESC LIMIT ?`
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			sm      Sample
			tick    int64
			takenAt int64
		)
		if err := rows.Scan(&sm.RunID, &tick, &takenAt, &sm.Signal, &sm.Value, &sm.DataSource, &sm.ProcessEfficiency); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sm.Tick = uint64(tick)
		sm.Time = time.Unix(0, takenAt).UTC()
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Events returns a run's events, newest first.
func (s *SQLiteHistoryStore) Events(ctx context.Context, runID string, limit int) ([]EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, at, kind, signal, step, old_value, new_value, change_percent
		 FROM events WHERE run_id = ? ORDER BY at DESC, id DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			ev             EventRecord
			at             int64
			signal, step   sql.NullString
			oldV, newV, cp sql.NullFloat64
		)
		if err := rows.Scan(&ev.RunID, &at, &ev.Kind, &signal, &step, &oldV, &newV, &cp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Time = time.Unix(0, at).UTC()
		ev.Signal = signal.String
		ev.Step = step.String
		ev.Old, ev.New, ev.ChangePercent = oldV.Float64, newV.Float64, cp.Float64
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Prune deletes samples and events older than before.
func (s *SQLiteHistoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := before.UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE taken_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned samples: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, cutoff); err != nil {
		return n, fmt.Errorf("failed to prune events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteHistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
