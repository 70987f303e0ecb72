package api

import "time"

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type createTaskRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"dueDate"`
	Priority    string    `json:"priority"`
	Category    string    `json:"category"`
}

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    *string    `json:"priority"`
	Category    *string    `json:"category"`
	IsCompleted *bool      `json:"isCompleted"`
}

type viewStateRequest struct {
	ViewMode         *string `json:"viewMode"`
	SidebarCollapsed *bool   `json:"sidebarCollapsed"`
	SelectedTaskID   *string `json:"selectedTaskId"`
}

type calendarAccessResponse struct {
	Status string `json:"status"`
}
