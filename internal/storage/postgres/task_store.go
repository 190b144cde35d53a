// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parselab/shop-parser/internal/parser"
)

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// TaskStore implements parser.TaskStore on Postgres.
type TaskStore struct {
	pool dbPool
}

// NewTaskStore connects a pool and returns a TaskStore.
func NewTaskStore(ctx context.Context, dsn string) (*TaskStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &TaskStore{pool: pool}, nil
}

// NewTaskStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewTaskStoreWithPool(pool dbPool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *TaskStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

const taskColumns = `id, url, parser_type, status, progress, max_pages,
rate_limit_override, products_found, products_saved, retry_count,
max_retries, error_message, tags, cancel_requested, deadline_seconds,
created_at, started_at, completed_at`

// CreateTask inserts a newly submitted task.
func (s *TaskStore) CreateTask(ctx context.Context, task parser.Task) error {
	tags, err := json.Marshal(orEmptyTags(task.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	query := `INSERT INTO parser_tasks (` + taskColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err = s.pool.Exec(ctx, query,
		task.ID, task.URL, string(task.ParserType), string(task.Status),
		task.Progress, task.MaxPages, task.RateLimitOverride,
		task.ProductsFound, task.ProductsSaved, task.RetryCount,
		task.MaxRetries, task.ErrorMessage, tags, task.CancelRequested,
		task.DeadlineSeconds, task.CreatedAt, task.StartedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask persists the mutable fields of a task.
func (s *TaskStore) UpdateTask(ctx context.Context, task parser.Task) error {
	query := `UPDATE parser_tasks SET
status = $2, progress = $3, products_found = $4, products_saved = $5,
retry_count = $6, error_message = $7, started_at = $8, completed_at = $9
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		task.ID, string(task.Status), task.Progress, task.ProductsFound,
		task.ProductsSaved, task.RetryCount, task.ErrorMessage,
		task.StartedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return parser.ErrNotFound
	}
	return nil
}

// RequestCancel flags a task for cancellation; the owning worker observes
// the flag between pages.
func (s *TaskStore) RequestCancel(ctx context.Context, taskID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE parser_tasks SET cancel_requested = TRUE WHERE id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return parser.ErrNotFound
	}
	return nil
}

// GetTask retrieves a single task by id.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (parser.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM parser_tasks WHERE id = $1`
	task, err := scanTask(s.pool.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return parser.Task{}, parser.ErrNotFound
		}
		return parser.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks retrieves recent tasks, optionally filtered by status, newest
// first.
func (s *TaskStore) ListTasks(ctx context.Context, status *parser.TaskStatus, limit int) ([]parser.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + taskColumns + ` FROM parser_tasks
WHERE ($1::text IS NULL OR status = $1)
ORDER BY created_at DESC
LIMIT $2`
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	rows, err := s.pool.Query(ctx, query, statusArg, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []parser.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (parser.Task, error) {
	var (
		task       parser.Task
		parserType string
		status     string
		tags       []byte
	)
	err := row.Scan(
		&task.ID, &task.URL, &parserType, &status, &task.Progress,
		&task.MaxPages, &task.RateLimitOverride, &task.ProductsFound,
		&task.ProductsSaved, &task.RetryCount, &task.MaxRetries,
		&task.ErrorMessage, &tags, &task.CancelRequested,
		&task.DeadlineSeconds, &task.CreatedAt, &task.StartedAt,
		&task.CompletedAt,
	)
	if err != nil {
		return parser.Task{}, err
	}
	task.ParserType = parser.ParserType(parserType)
	task.Status = parser.TaskStatus(status)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &task.Tags); err != nil {
			return parser.Task{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	normalizeTaskTimes(&task)
	return task, nil
}

func normalizeTaskTimes(task *parser.Task) {
	task.CreatedAt = task.CreatedAt.UTC()
	if task.StartedAt != nil {
		t := task.StartedAt.UTC()
		task.StartedAt = &t
	}
	if task.CompletedAt != nil {
		t := task.CompletedAt.UTC()
		task.CompletedAt = &t
	}
}

func orEmptyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

