package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/stepflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. the step journal).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

// SaveRun upserts a finished run together with its step trace.
func (s *LibSQLStore) SaveRun(ctx context.Context, result *schema.RunResult) error {
	if result == nil || result.RunID == "" {
		return schema.NewError(schema.ErrCodeValidation, "run result without id")
	}
	steps, err := json.Marshal(result.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, flow_name, status, failed_step, error_message, error_code, steps, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   flow_name=excluded.flow_name, status=excluded.status, failed_step=excluded.failed_step,
		   error_message=excluded.error_message, error_code=excluded.error_code, steps=excluded.steps,
		   started_at=excluded.started_at, duration_ms=excluded.duration_ms`,
		result.RunID, nullStr(result.FlowName), string(result.Status), nullStr(result.FailedStep),
		nullStr(result.ErrorMessage), nullStr(result.ErrorCode), string(steps),
		timeOrNow(result.StartedAt), result.DurationMs,
	)
	return err
}

// GetRun loads a run with its step trace. Outputs come back as plain JSON
// values; loop outputs are maps rather than *schema.LoopOutput.
func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*schema.RunResult, error) {
	r := &schema.RunResult{}
	var (
		flowName, failedStep, errMsg, errCode sql.NullString
		status, steps                         string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, flow_name, status, failed_step, error_message, error_code, steps, started_at, duration_ms
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.RunID, &flowName, &status, &failedStep, &errMsg, &errCode, &steps, &r.StartedAt, &r.DurationMs)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	r.FlowName = flowName.String
	r.Status = schema.StepStatus(status)
	r.FailedStep = failedStep.String
	r.ErrorMessage = errMsg.String
	r.ErrorCode = errCode.String

	r.Steps = schema.NewStepRecord()
	if err := json.Unmarshal([]byte(steps), r.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal run steps: %w", err)
	}
	return r, nil
}

// ListRuns returns run summaries, newest first.
func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunSummary, error) {
	query := `SELECT id, flow_name, status, failed_step, error_message, error_code, started_at, duration_ms FROM runs`
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.FlowName != "" {
		where = append(where, "flow_name = ?")
		args = append(args, filter.FlowName)
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunSummary
	for rows.Next() {
		r := &RunSummary{}
		var flowName, failedStep, errMsg, errCode sql.NullString
		var status string
		if err := rows.Scan(&r.RunID, &flowName, &status, &failedStep, &errMsg, &errCode, &r.StartedAt, &r.DurationMs); err != nil {
			return nil, err
		}
		r.FlowName = flowName.String
		r.Status = schema.StepStatus(status)
		r.FailedStep = failedStep.String
		r.ErrorMessage = errMsg.String
		r.ErrorCode = errCode.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its journal.
func (s *LibSQLStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "run", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM step_events WHERE run_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Step journal ---

// AppendEvent appends an event with a monotonically increasing per-run sequence.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *StepEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM step_events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Scope == "" {
		event.Scope = "/"
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO step_events (run_id, step, scope, action_type, status, error_code, duration_ms, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RunID, event.Step, event.Scope, nullStr(string(event.ActionType)), string(event.Status),
		nullStr(event.ErrorCode), event.DurationMs, event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns the events of a run with sequence > since, ordered by sequence.
func (s *LibSQLStore) GetEvents(ctx context.Context, runID string, since int64) ([]*StepEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, step, scope, action_type, status, error_code, duration_ms, timestamp, sequence
		 FROM step_events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`,
		runID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StepEvent
	for rows.Next() {
		e := &StepEvent{}
		var actionType, errCode sql.NullString
		var status string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Step, &e.Scope, &actionType, &status, &errCode, &e.DurationMs, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.ActionType = schema.ActionType(actionType.String)
		e.Status = schema.StepStatus(status)
		e.ErrorCode = errCode.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Secrets ---

func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, rotated_at=CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("secret", key)
	}
	return value, err
}

func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "secret", key)
}

func (s *LibSQLStore) ListSecrets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*LibSQLStore)(nil)
