package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agent_orchestrator/internal/domain"
	"agent_orchestrator/internal/history"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database that lives as long as the Store.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS task_records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	task TEXT NOT NULL,
	strategy TEXT NOT NULL,
	agents TEXT NOT NULL,
	context TEXT NOT NULL,
	result TEXT NOT NULL,
	success INTEGER NOT NULL,
	processing_time_ms REAL NOT NULL,
	user_name TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_records_created ON task_records(created_at);
`

const selectColumns = `id, task, strategy, agents, context, result, processing_time_ms, user_name, created_at`

var _ history.Store = (*Store)(nil)

type Store struct {
	db       *sql.DB
	capacity int
}

// Open opens the database at dbPath; an empty path means MemoryPath. Only the
// newest capacity records are retained (history.DefaultCapacity when <= 0).
func Open(dbPath string, capacity int) (*Store, error) {
	if dbPath == "" {
		dbPath = MemoryPath
	}
	if capacity <= 0 {
		capacity = history.DefaultCapacity
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dbPath == MemoryPath {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db, capacity: capacity}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, rec domain.TaskRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("append task record: empty id")
	}
	agents, err := json.Marshal(rec.Agents)
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}
	taskContext, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx append record: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO task_records(id, task, strategy, agents, context, result, success, processing_time_ms, user_name, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Task, string(rec.Strategy), string(agents), string(taskContext), string(result),
		boolToInt(rec.Result.Success), rec.ProcessingTimeMS, rec.User, created.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert task record %s: %w", rec.ID, err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM task_records WHERE seq <= (SELECT MAX(seq) FROM task_records) - ?`,
		s.capacity,
	); err != nil {
		return fmt.Errorf("prune task records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, taskID string) (domain.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM task_records WHERE id = ?`, taskID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TaskRecord{}, fmt.Errorf("%w: %s", history.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return domain.TaskRecord{}, fmt.Errorf("get task record: %w", err)
	}
	return rec, nil
}

func (s *Store) Recent(ctx context.Context, n int) ([]domain.TaskRecord, error) {
	limit := n
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+selectColumns+` FROM task_records ORDER BY seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TaskRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task records: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) AggregateSuccessRate(ctx context.Context) (float64, error) {
	ov, err := s.Overview(ctx)
	if err != nil {
		return 0, err
	}
	if ov.TotalTasks == 0 {
		return 0, nil
	}
	return float64(ov.SuccessfulTasks) / float64(ov.TotalTasks), nil
}

func (s *Store) Overview(ctx context.Context) (domain.HistoryOverview, error) {
	var total, successes int
	var avg float64
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*), COALESCE(SUM(success), 0), COALESCE(AVG(processing_time_ms), 0) FROM task_records`,
	).Scan(&total, &successes, &avg); err != nil {
		return domain.HistoryOverview{}, fmt.Errorf("aggregate task records: %w", err)
	}
	out := domain.HistoryOverview{
		TotalTasks:      total,
		SuccessfulTasks: successes,
		FailedTasks:     total - successes,
	}
	if total > 0 {
		out.SuccessRate = float64(successes) / float64(total) * 100
		out.AverageProcessingTimeMS = avg
	}
	return out, nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count task records: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.TaskRecord, error) {
	var rec domain.TaskRecord
	var strategy, agents, taskContext, result string
	var created int64
	if err := row.Scan(
		&rec.ID, &rec.Task, &strategy, &agents, &taskContext, &result,
		&rec.ProcessingTimeMS, &rec.User, &created,
	); err != nil {
		return domain.TaskRecord{}, err
	}
	rec.Strategy = domain.StrategyName(strategy)
	if err := json.Unmarshal([]byte(agents), &rec.Agents); err != nil {
		return domain.TaskRecord{}, fmt.Errorf("decode agents: %w", err)
	}
	if err := json.Unmarshal([]byte(taskContext), &rec.Context); err != nil {
		return domain.TaskRecord{}, fmt.Errorf("decode context: %w", err)
	}
	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return domain.TaskRecord{}, fmt.Errorf("decode result: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
