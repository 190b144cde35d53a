package parser

import (
	"context"
	"time"
)

// TaskStore persists task metadata.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	UpdateTask(ctx context.Context, task Task) error
	ListTasks(ctx context.Context, status *TaskStatus, limit int) ([]Task, error)
	RequestCancel(ctx context.Context, taskID string) error
}

// ProductStore persists extracted products. Inserts are append-only.
type ProductStore interface {
	InsertProduct(ctx context.Context, product Product) error
	ListProducts(ctx context.Context, taskID string) ([]Product, error)
	Stats(ctx context.Context) (Stats, error)
}

// EventSink receives completion events. Fire-and-forget: failures are
// logged by the caller, never fatal.
type EventSink interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Strategy extracts canonical product records from fetched content. A
// listing page may yield several records; a page with no resolvable title
// yields none.
type Strategy interface {
	Extract(content []byte, sourceURL string) ([]Product, error)
	NextPageURL(content []byte, currentURL string) string
}

// SnapshotStore archives raw page content and returns a URI.
type SnapshotStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Queue provides enqueue/dequeue semantics for parsing tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task and product IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
