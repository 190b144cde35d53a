// Package memory provides in-memory store implementations used for
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/parselab/shop-parser/internal/parser"
)

// TaskStore keeps tasks in a mutex-guarded map.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]parser.Task
}

// NewTaskStore returns an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]parser.Task)}
}

// CreateTask implements parser.TaskStore.
func (s *TaskStore) CreateTask(_ context.Context, task parser.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// GetTask implements parser.TaskStore.
func (s *TaskStore) GetTask(_ context.Context, taskID string) (parser.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return parser.Task{}, parser.ErrNotFound
	}
	return cloneTask(task), nil
}

// UpdateTask implements parser.TaskStore. Only the mutable lifecycle fields
// are replaced; creation-time fields keep their stored values.
func (s *TaskStore) UpdateTask(_ context.Context, task parser.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[task.ID]
	if !ok {
		return parser.ErrNotFound
	}
	current.Status = task.Status
	current.Progress = task.Progress
	current.ProductsFound = task.ProductsFound
	current.ProductsSaved = task.ProductsSaved
	current.RetryCount = task.RetryCount
	current.ErrorMessage = task.ErrorMessage
	current.StartedAt = task.StartedAt
	current.CompletedAt = task.CompletedAt
	s.tasks[task.ID] = current
	return nil
}

// ListTasks implements parser.TaskStore, newest first.
func (s *TaskStore) ListTasks(_ context.Context, status *parser.TaskStatus, limit int) ([]parser.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]parser.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if status != nil && task.Status != *status {
			continue
		}
		tasks = append(tasks, cloneTask(task))
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// RequestCancel implements parser.TaskStore.
func (s *TaskStore) RequestCancel(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return parser.ErrNotFound
	}
	task.CancelRequested = true
	s.tasks[taskID] = task
	return nil
}

func cloneTask(task parser.Task) parser.Task {
	if task.Tags != nil {
		tags := make(map[string]string, len(task.Tags))
		for k, v := range task.Tags {
			tags[k] = v
		}
		task.Tags = tags
	}
	if task.StartedAt != nil {
		t := *task.StartedAt
		task.StartedAt = &t
	}
	if task.CompletedAt != nil {
		t := *task.CompletedAt
		task.CompletedAt = &t
	}
	return task
}
