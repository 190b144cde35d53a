package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/parselab/shop-parser/internal/parser"
)

func TestCreateTaskInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewTaskStoreWithPool(mock)

	now := time.Unix(1700000000, 0).UTC()
	task := parser.Task{
		ID:         "task-1",
		URL:        "https://shop.example/catalog",
		ParserType: parser.ParserTypeUniversal,
		Status:     parser.TaskStatusPending,
		MaxPages:   3,
		MaxRetries: 3,
		Tags:       map[string]string{"source": "api"},
		CreatedAt:  now,
	}

	mock.ExpectExec("INSERT INTO parser_tasks").
		WithArgs(
			task.ID, task.URL, "universal", "pending",
			task.Progress, task.MaxPages, task.RateLimitOverride,
			task.ProductsFound, task.ProductsSaved, task.RetryCount,
			task.MaxRetries, task.ErrorMessage, []byte(`{"source":"api"}`),
			task.CancelRequested, task.DeadlineSeconds,
			task.CreatedAt, task.StartedAt, task.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.CreateTask(context.Background(), task)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewTaskStoreWithPool(mock)

	task := parser.Task{ID: "missing", Status: parser.TaskStatusRunning}

	mock.ExpectExec("UPDATE parser_tasks SET").
		WithArgs(
			task.ID, "running", task.Progress, task.ProductsFound,
			task.ProductsSaved, task.RetryCount, task.ErrorMessage,
			task.StartedAt, task.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateTask(context.Background(), task)
	require.ErrorIs(t, err, parser.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTaskScansRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewTaskStoreWithPool(mock)

	created := time.Unix(1700000000, 0).UTC()
	started := created.Add(2 * time.Second)

	rows := pgxmock.NewRows([]string{
		"id", "url", "parser_type", "status", "progress", "max_pages",
		"rate_limit_override", "products_found", "products_saved",
		"retry_count", "max_retries", "error_message", "tags",
		"cancel_requested", "deadline_seconds", "created_at", "started_at",
		"completed_at",
	}).AddRow(
		"task-1", "https://shop.example/catalog", "universal", "running",
		33, 3, 0.0, 5, 5, 0, 3, "", []byte(`{"source":"api"}`),
		false, 0, created, &started, (*time.Time)(nil),
	)

	mock.ExpectQuery("SELECT (.+) FROM parser_tasks WHERE id").
		WithArgs("task-1").
		WillReturnRows(rows)

	task, err := store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, parser.TaskStatusRunning, task.Status)
	require.Equal(t, parser.ParserTypeUniversal, task.ParserType)
	require.Equal(t, 33, task.Progress)
	require.Equal(t, map[string]string{"source": "api"}, task.Tags)
	require.NotNil(t, task.StartedAt)
	require.Nil(t, task.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTaskNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewTaskStoreWithPool(mock)

	mock.ExpectQuery("SELECT (.+) FROM parser_tasks WHERE id").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = store.GetTask(context.Background(), "nope")
	require.ErrorIs(t, err, parser.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestCancelFlagsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewTaskStoreWithPool(mock)

	mock.ExpectExec("UPDATE parser_tasks SET cancel_requested").
		WithArgs("task-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RequestCancel(context.Background(), "task-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTasksFiltersByStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewTaskStoreWithPool(mock)

	created := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"id", "url", "parser_type", "status", "progress", "max_pages",
		"rate_limit_override", "products_found", "products_saved",
		"retry_count", "max_retries", "error_message", "tags",
		"cancel_requested", "deadline_seconds", "created_at", "started_at",
		"completed_at",
	}).AddRow(
		"task-2", "https://shop.example/b", "universal", "pending",
		0, 1, 0.0, 0, 0, 0, 3, "", []byte(`{}`),
		false, 0, created, (*time.Time)(nil), (*time.Time)(nil),
	)

	pending := "pending"
	mock.ExpectQuery("SELECT (.+) FROM parser_tasks").
		WithArgs(&pending, 10).
		WillReturnRows(rows)

	status := parser.TaskStatusPending
	tasks, err := store.ListTasks(context.Background(), &status, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "task-2", tasks[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
