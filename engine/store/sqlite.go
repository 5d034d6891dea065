package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/driftkit-go/workflow-engine/engine"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file, single-process engine.InstanceStore:
// WAL-mode/foreign-keys/busy-timeout PRAGMA setup over a
// single-writer connection pool, with one instances row per run — this
// engine persists a whole Instance snapshot on every transition rather
// than a sequence of state deltas, so there is nothing to reconstruct
// by scanning multiple rows.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path
// and migrates its schema. path may be ":memory:" for a process-local,
// non-durable database useful in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	instancesTable := `
		CREATE TABLE IF NOT EXISTS instances (
			run_id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			version TEXT NOT NULL,
			status INTEGER NOT NULL,
			current_step_id TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, instancesTable); err != nil {
		return fmt.Errorf("create instances table: %w", err)
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_instances_workflow ON instances(workflow_id)",
		"CREATE INDEX IF NOT EXISTS idx_instances_status ON instances(status)",
	} {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	idemTable := `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			run_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			invocation INTEGER NOT NULL,
			result TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, step_id, invocation)
		)
	`
	if _, err := s.db.ExecContext(ctx, idemTable); err != nil {
		return fmt.Errorf("create idempotency_keys table: %w", err)
	}
	return nil
}

// encodedInstance is the JSON-serializable mirror of engine.Instance.
// History (with its Results) is persisted as opaque JSON via this
// intermediate rather than gob, following this store's convention of
// keeping every persisted value a JSON TEXT column. The Context and
// async task records are not persisted; LoadInstance returns them empty.
type encodedInstance struct {
	RunID         string                   `json:"run_id"`
	WorkflowID    string                   `json:"workflow_id"`
	Version       string                   `json:"version"`
	Status        engine.Status            `json:"status"`
	CurrentStepID string                   `json:"current_step_id"`
	History       []engine.ExecutionRecord `json:"history"`
	Error         *engine.ErrorInfo        `json:"error,omitempty"`
	Suspension    *engine.SuspensionRecord `json:"suspension,omitempty"`
	Labels        map[string]string        `json:"labels"`
}

func (s *SQLiteStore) SaveInstance(ctx context.Context, inst *engine.Instance) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	enc := encodedInstance{
		RunID:         inst.RunID,
		WorkflowID:    inst.WorkflowID,
		Version:       inst.Version,
		Status:        inst.Status,
		CurrentStepID: inst.CurrentStepID,
		History:       inst.History,
		Error:         inst.Error,
		Suspension:    inst.Suspension,
		Labels:        inst.Labels,
	}
	blob, err := json.Marshal(enc)
	if err != nil {
		return &engine.EngineError{Message: "marshal instance snapshot", Code: engine.CodePersistenceError, Cause: err}
	}

	query := `
		INSERT INTO instances (run_id, workflow_id, version, status, current_step_id, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			current_step_id = excluded.current_step_id,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		inst.RunID, inst.WorkflowID, inst.Version, int(inst.Status), inst.CurrentStepID,
		string(blob), inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return &engine.EngineError{Message: "save instance", Code: engine.CodePersistenceError, Cause: err}
	}
	return nil
}

func (s *SQLiteStore) LoadInstance(ctx context.Context, runID string) (*engine.Instance, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `SELECT snapshot, created_at, updated_at FROM instances WHERE run_id = ?`
	var (
		blob             string
		createdAt, updatedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&blob, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, engine.ErrRunNotFound
	}
	if err != nil {
		return nil, &engine.EngineError{Message: "load instance", Code: engine.CodePersistenceError, Cause: err}
	}

	var enc encodedInstance
	if err := json.Unmarshal([]byte(blob), &enc); err != nil {
		return nil, &engine.EngineError{Message: "unmarshal instance snapshot", Code: engine.CodePersistenceError, Cause: err}
	}

	inst := &engine.Instance{
		RunID:         enc.RunID,
		WorkflowID:    enc.WorkflowID,
		Version:       enc.Version,
		Status:        enc.Status,
		CurrentStepID: enc.CurrentStepID,
		Ctx:           engine.NewContext(nil),
		History:       enc.History,
		Error:         enc.Error,
		Suspension:    enc.Suspension,
		AsyncTasks:    make(map[string]*engine.AsyncTaskRecord),
		Labels:        enc.Labels,
		CreatedAt:     createdAt.Time,
		UpdatedAt:     updatedAt.Time,
	}
	if inst.Labels == nil {
		inst.Labels = make(map[string]string)
	}
	return inst, nil
}

func (s *SQLiteStore) DeleteInstance(ctx context.Context, runID string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM instances WHERE run_id = ?", runID)
	if err != nil {
		return &engine.EngineError{Message: "delete instance", Code: engine.CodePersistenceError, Cause: err}
	}
	return nil
}

func (s *SQLiteStore) ListInstances(ctx context.Context, workflowID string, status engine.Status, hasStatus bool) ([]string, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := "SELECT run_id FROM instances WHERE 1=1"
	var args []any
	if workflowID != "" {
		query += " AND workflow_id = ?"
		args = append(args, workflowID)
	}
	if hasStatus {
		query += " AND status = ?"
		args = append(args, int(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &engine.EngineError{Message: "list instances", Code: engine.CodePersistenceError, Cause: err}
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, &engine.EngineError{Message: "scan instance row", Code: engine.CodePersistenceError, Cause: err}
		}
		out = append(out, runID)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CheckIdempotency(ctx context.Context, runID, stepID string, invocation int) (engine.Result, bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, false, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `SELECT result FROM idempotency_keys WHERE run_id = ? AND step_id = ? AND invocation = ?`
	var blob string
	err := s.db.QueryRowContext(ctx, query, runID, stepID, invocation).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &engine.EngineError{Message: "check idempotency", Code: engine.CodePersistenceError, Cause: err}
	}
	// Results carry concrete step-output types the store cannot
	// reconstruct generically; callers treat a true here as "already
	// committed" and skip re-invocation rather than decoding the blob.
	return nil, true, nil
}

// Close closes the underlying database connection. Safe to call more
// than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the store's database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}
