package storage

import (
	"context"
	"errors"
	"time"

	"nebula-api/domain"
)

// TaskBackend abstracts the object store that holds the durable task
// collection. Backends return domain.NotFoundError when a mutation target is
// absent and raw driver errors otherwise.
type TaskBackend interface {
	InsertTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	GetTask(ctx context.Context, id string) (domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
}

// Store is the sole authority on the task collection. It owns the CRUD
// contract: driver failures surface as domain.PersistenceError with no
// partial mutation applied, absent targets as domain.NotFoundError.
type Store struct {
	backend TaskBackend
}

// NewStore wraps the given backend.
func NewStore(backend TaskBackend) *Store {
	if backend == nil {
		panic("storage.NewStore: backend is nil")
	}
	return &Store{backend: backend}
}

// Create validates and persists a new task, returning the stored record.
func (s *Store) Create(ctx context.Context, title, description string, dueDate time.Time, priority domain.Priority, category domain.Category) (domain.Task, error) {
	task, err := domain.NewTask(title, description, dueDate, priority, category)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.backend.InsertTask(ctx, task); err != nil {
		return domain.Task{}, domain.PersistenceError{Op: "create task", Err: err}
	}
	return task, nil
}

// Update applies the set fields to the task matching id.
func (s *Store) Update(ctx context.Context, id string, fields domain.TaskFields) (domain.Task, error) {
	task, err := s.get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := fields.Apply(&task); err != nil {
		return domain.Task{}, err
	}
	if err := s.backend.UpdateTask(ctx, task); err != nil {
		if isNotFound(err) {
			return domain.Task{}, err
		}
		return domain.Task{}, domain.PersistenceError{Op: "update task", Err: err}
	}
	return task, nil
}

// Delete removes the task. A second delete of the same id fails with
// domain.NotFoundError; removal is terminal.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.DeleteTask(ctx, id); err != nil {
		if isNotFound(err) {
			return err
		}
		return domain.PersistenceError{Op: "delete task", Err: err}
	}
	return nil
}

// ToggleCompletion flips the completion flag of the task matching id.
func (s *Store) ToggleCompletion(ctx context.Context, id string) (domain.Task, error) {
	task, err := s.get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	completed := !task.IsCompleted
	return s.Update(ctx, id, domain.TaskFields{IsCompleted: &completed})
}

// Get returns the task matching id.
func (s *Store) Get(ctx context.Context, id string) (domain.Task, error) {
	return s.get(ctx, id)
}

// List returns every stored task in insertion order. Sorting by any field is
// a presentation concern applied downstream.
func (s *Store) List(ctx context.Context) ([]domain.Task, error) {
	tasks, err := s.backend.ListTasks(ctx)
	if err != nil {
		return nil, domain.PersistenceError{Op: "list tasks", Err: err}
	}
	return tasks, nil
}

func (s *Store) get(ctx context.Context, id string) (domain.Task, error) {
	task, err := s.backend.GetTask(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, err
		}
		return domain.Task{}, domain.PersistenceError{Op: "load task", Err: err}
	}
	return task, nil
}

func isNotFound(err error) bool {
	var nf domain.NotFoundError
	return errors.As(err, &nf)
}
