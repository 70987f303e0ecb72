package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"nebula-api/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date DATETIME NOT NULL,
	priority TEXT NOT NULL,
	category TEXT NOT NULL,
	completed BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
)`

// SQLite is the local persistence backend. Listing follows rowid, which is
// insertion order.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the task database at path. Use
// ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) InsertTask(ctx context.Context, task domain.Task) error {
	query := `INSERT INTO tasks (id, title, description, due_date, priority, category, completed, created_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.DueDate,
		string(task.Priority), string(task.Category), task.IsCompleted, task.CreationDate)
	return err
}

func (s *SQLite) UpdateTask(ctx context.Context, task domain.Task) error {
	query := `UPDATE tasks SET title = ?, description = ?, due_date = ?, priority = ?, category = ?, completed = ?
	 WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		task.Title, task.Description, task.DueDate,
		string(task.Priority), string(task.Category), task.IsCompleted, task.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundError{ID: task.ID}
	}
	return nil
}

func (s *SQLite) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundError{ID: id}
	}
	return nil
}

func (s *SQLite) GetTask(ctx context.Context, id string) (domain.Task, error) {
	query := `SELECT id, title, description, due_date, priority, category, completed, created_at
	 FROM tasks WHERE id = ?`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.NotFoundError{ID: id}
	}
	return task, err
}

func (s *SQLite) ListTasks(ctx context.Context) ([]domain.Task, error) {
	query := `SELECT id, title, description, due_date, priority, category, completed, created_at
	 FROM tasks ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		task                  domain.Task
		title                 sql.NullString
		priority, category    string
		dueDate, creationDate time.Time
	)
	err := row.Scan(&task.ID, &title, &task.Description, &dueDate, &priority, &category, &task.IsCompleted, &creationDate)
	if err != nil {
		return domain.Task{}, err
	}
	// Legacy rows may carry NULL or empty titles; decode with the documented
	// fallback rather than failing the load.
	task.Title = title.String
	if task.Title == "" {
		task.Title = domain.FallbackTitle
	}
	task.DueDate = dueDate
	task.CreationDate = creationDate
	task.Priority = domain.ParsePriority(priority)
	task.Category = domain.ParseCategory(category)
	return task, nil
}
