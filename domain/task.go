package domain

import (
	"time"

	"github.com/google/uuid"
)

// Priority classifies how urgent a task is. The set is closed; unknown
// persisted values decode to PriorityLow.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps a stored string onto a Priority, falling back to
// PriorityLow so legacy rows never fail to load.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s)
	default:
		return PriorityLow
	}
}

// Order returns the sort rank of the priority, most urgent first.
func (p Priority) Order() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Category groups tasks by life area. The set is closed; unknown persisted
// values decode to CategoryOther.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryPersonal Category = "personal"
	CategoryHealth   Category = "health"
	CategoryFinance  Category = "finance"
	CategoryLearning Category = "learning"
	CategorySocial   Category = "social"
	CategoryOther    Category = "other"
)

// ParseCategory maps a stored string onto a Category, falling back to
// CategoryOther.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryWork, CategoryPersonal, CategoryHealth, CategoryFinance,
		CategoryLearning, CategorySocial, CategoryOther:
		return Category(s)
	default:
		return CategoryOther
	}
}

// FallbackTitle is substituted when decoding legacy rows persisted without a
// title. New tasks are validated instead; see NewTask.
const FallbackTitle = "New Task"

// Task is a single user-created actionable item.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	DueDate      time.Time `json:"dueDate"`
	Priority     Priority  `json:"priority"`
	Category     Category  `json:"category"`
	IsCompleted  bool      `json:"isCompleted"`
	CreationDate time.Time `json:"creationDate"`
}

// TaskFields carries a partial update. Nil fields are left untouched.
// ID and CreationDate are immutable and have no counterpart here.
type TaskFields struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Category    *Category  `json:"category,omitempty"`
	IsCompleted *bool      `json:"isCompleted,omitempty"`
}

// Apply copies the set fields onto t.
func (f TaskFields) Apply(t *Task) error {
	if f.Title != nil {
		if *f.Title == "" {
			return ValidationError{Field: "title", Reason: "must not be empty"}
		}
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.DueDate != nil {
		t.DueDate = *f.DueDate
	}
	if f.Priority != nil {
		t.Priority = ParsePriority(string(*f.Priority))
	}
	if f.Category != nil {
		t.Category = ParseCategory(string(*f.Category))
	}
	if f.IsCompleted != nil {
		t.IsCompleted = *f.IsCompleted
	}
	return nil
}

// NewTask assembles a task ready to be persisted: a fresh ID, CreationDate set
// to now and IsCompleted false. An empty title is a validation error rather
// than a silent default; a zero due date defaults to the creation time.
func NewTask(title, description string, dueDate time.Time, priority Priority, category Category) (Task, error) {
	if title == "" {
		return Task{}, ValidationError{Field: "title", Reason: "must not be empty"}
	}
	now := time.Now()
	if dueDate.IsZero() {
		dueDate = now
	}
	return Task{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		DueDate:      dueDate,
		Priority:     ParsePriority(string(priority)),
		Category:     ParseCategory(string(category)),
		IsCompleted:  false,
		CreationDate: now,
	}, nil
}
