package views

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"nebula-api/calendar"
	"nebula-api/domain"
)

// TaskStore is the slice of the task store the coordinator drives.
type TaskStore interface {
	Create(ctx context.Context, title, description string, dueDate time.Time, priority domain.Priority, category domain.Category) (domain.Task, error)
	Update(ctx context.Context, id string, fields domain.TaskFields) (domain.Task, error)
	Delete(ctx context.Context, id string) error
	ToggleCompletion(ctx context.Context, id string) (domain.Task, error)
	Get(ctx context.Context, id string) (domain.Task, error)
	List(ctx context.Context) ([]domain.Task, error)
}

// CalendarBridge is the slice of the calendar bridge the coordinator drives.
type CalendarBridge interface {
	RequestAccess(ctx context.Context) (calendar.AuthorizationStatus, error)
	FetchEvents(ctx context.Context) error
	Status() calendar.AuthorizationStatus
	Loading() bool
	LastError() string
	Events() []domain.CalendarEvent
	EventsForDate(date time.Time) []domain.CalendarEvent
	EventsForRange(start, end time.Time) []domain.CalendarEvent
}

// ViewMode selects which date-scoped projection the presentation layer shows.
type ViewMode string

const (
	ViewDay   ViewMode = "day"
	ViewWeek  ViewMode = "week"
	ViewMonth ViewMode = "month"
)

// ParseViewMode maps a raw string onto a ViewMode, defaulting to day.
func ParseViewMode(s string) ViewMode {
	switch ViewMode(strings.ToLower(s)) {
	case ViewWeek:
		return ViewWeek
	case ViewMonth:
		return ViewMonth
	default:
		return ViewDay
	}
}

// DensityLevel buckets a density ratio for display.
type DensityLevel string

const (
	DensityNone   DensityLevel = "none"
	DensityLow    DensityLevel = "low"
	DensityMedium DensityLevel = "medium"
	DensityHigh   DensityLevel = "high"
)

// LevelForDensity applies the fixed display thresholds.
func LevelForDensity(density float64) DensityLevel {
	switch {
	case density > 0.3:
		return DensityHigh
	case density > 0.1:
		return DensityMedium
	case density > 0:
		return DensityLow
	default:
		return DensityNone
	}
}

// DayTasks groups the tasks due on one calendar day.
type DayTasks struct {
	Date  time.Time     `json:"date"`
	Tasks []domain.Task `json:"tasks"`
}

// MonthCell is one day slot of the fixed 7-column month grid.
type MonthCell struct {
	Date    time.Time    `json:"date"`
	InMonth bool         `json:"inMonth"`
	IsToday bool         `json:"isToday"`
	Density float64      `json:"density"`
	Level   DensityLevel `json:"level"`
}

// CalendarState is a snapshot of the bridge for the presentation layer.
type CalendarState struct {
	Status    string `json:"status"`
	Loading   bool   `json:"loading"`
	LastError string `json:"lastError,omitempty"`
}

// Snapshot is the full published state: what a subscriber re-reads after a
// change notification.
type Snapshot struct {
	Tasks            []domain.Task          `json:"tasks"`
	Events           []domain.CalendarEvent `json:"events"`
	ViewMode         ViewMode               `json:"viewMode"`
	SidebarCollapsed bool                   `json:"sidebarCollapsed"`
	SelectedTaskID   string                 `json:"selectedTaskId,omitempty"`
	Calendar         CalendarState          `json:"calendar"`
}

// Coordinator composes the task store and the calendar bridge into the
// date-scoped projections the presentation layer renders, owns the
// UI-orthogonal state, and publishes a change notification after every
// successful mutation. Derived queries are pure functions over the current
// task list and calendar cache, recomputed on demand.
type Coordinator struct {
	store     TaskStore
	bridge    CalendarBridge
	broker    *Broker
	loc       *time.Location
	weekStart time.Weekday
	logger    *log.Logger

	mu               sync.Mutex
	viewMode         ViewMode
	sidebarCollapsed bool
	selectedTaskID   string
}

// NewCoordinator creates a coordinator. Day boundaries are computed in loc;
// pass nil for time.Local.
func NewCoordinator(store TaskStore, bridge CalendarBridge, weekStart time.Weekday, loc *time.Location, logger *log.Logger) *Coordinator {
	if store == nil {
		panic("views.NewCoordinator: store is nil")
	}
	if bridge == nil {
		panic("views.NewCoordinator: bridge is nil")
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.New()
	}
	return &Coordinator{
		store:     store,
		bridge:    bridge,
		broker:    NewBroker(),
		loc:       loc,
		weekStart: weekStart,
		logger:    logger,
		viewMode:  ViewDay,
	}
}

// Broker exposes the change-notification fan-out for streaming consumers.
func (c *Coordinator) Broker() *Broker {
	return c.broker
}

// Location returns the timezone used for day boundaries.
func (c *Coordinator) Location() *time.Location {
	return c.loc
}

// CreateTask persists a new task and publishes the change.
func (c *Coordinator) CreateTask(ctx context.Context, title, description string, dueDate time.Time, priority domain.Priority, category domain.Category) (domain.Task, error) {
	task, err := c.store.Create(ctx, title, description, dueDate, priority, category)
	if err != nil {
		return domain.Task{}, err
	}
	c.broker.Notify()
	return task, nil
}

// UpdateTask applies the set fields and publishes the change.
func (c *Coordinator) UpdateTask(ctx context.Context, id string, fields domain.TaskFields) (domain.Task, error) {
	task, err := c.store.Update(ctx, id, fields)
	if err != nil {
		return domain.Task{}, err
	}
	c.broker.Notify()
	return task, nil
}

// DeleteTask removes a task and publishes the change. A deleted task stops
// being the selection.
func (c *Coordinator) DeleteTask(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	if c.selectedTaskID == id {
		c.selectedTaskID = ""
	}
	c.mu.Unlock()
	c.broker.Notify()
	return nil
}

// ToggleTask flips completion and publishes the change.
func (c *Coordinator) ToggleTask(ctx context.Context, id string) (domain.Task, error) {
	task, err := c.store.ToggleCompletion(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.broker.Notify()
	return task, nil
}

// Tasks returns every task in storage order.
func (c *Coordinator) Tasks(ctx context.Context) ([]domain.Task, error) {
	return c.store.List(ctx)
}

// Task returns the task matching id.
func (c *Coordinator) Task(ctx context.Context, id string) (domain.Task, error) {
	return c.store.Get(ctx, id)
}

// TasksForDay returns the tasks whose due date falls on the calendar day
// containing date, most urgent first.
func (c *Coordinator) TasksForDay(ctx context.Context, date time.Time) ([]domain.Task, error) {
	tasks, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return c.tasksForDay(tasks, date), nil
}

func (c *Coordinator) tasksForDay(tasks []domain.Task, date time.Time) []domain.Task {
	day := c.startOfDay(date)
	next := day.AddDate(0, 0, 1)

	out := []domain.Task{}
	for _, t := range tasks {
		due := t.DueDate.In(c.loc)
		if !due.Before(day) && due.Before(next) {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out
}

// TasksForWeek groups tasks by day across the 7 days of the week containing
// date, in week-start order.
func (c *Coordinator) TasksForWeek(ctx context.Context, date time.Time) ([]DayTasks, error) {
	tasks, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	start := c.startOfWeek(date)
	week := make([]DayTasks, 0, 7)
	for i := 0; i < 7; i++ {
		day := start.AddDate(0, 0, i)
		week = append(week, DayTasks{Date: day, Tasks: c.tasksForDay(tasks, day)})
	}
	return week, nil
}

// Density returns the share of all tasks due on the day containing date,
// 0 when the store is empty.
func (c *Coordinator) Density(ctx context.Context, date time.Time) (float64, error) {
	tasks, err := c.store.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	return float64(len(c.tasksForDay(tasks, date))) / float64(len(tasks)), nil
}

// MonthGrid returns the days of the complete weeks covering the month
// containing date, in order, for a fixed 7-column grid.
func (c *Coordinator) MonthGrid(date time.Time) []time.Time {
	d := date.In(c.loc)
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, c.loc)
	last := first.AddDate(0, 1, -1)

	cur := c.startOfWeek(first)
	end := c.startOfWeek(last).AddDate(0, 0, 7)

	grid := []time.Time{}
	for cur.Before(end) {
		grid = append(grid, cur)
		cur = cur.AddDate(0, 0, 1)
	}
	return grid
}

// MonthCells computes the month grid with a density level per day.
func (c *Coordinator) MonthCells(ctx context.Context, date time.Time) ([]MonthCell, error) {
	tasks, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	month := date.In(c.loc).Month()
	total := len(tasks)
	today := c.startOfDay(time.Now())

	cells := []MonthCell{}
	for _, day := range c.MonthGrid(date) {
		density := 0.0
		if total > 0 {
			density = float64(len(c.tasksForDay(tasks, day))) / float64(total)
		}
		cells = append(cells, MonthCell{
			Date:    day,
			InMonth: day.Month() == month,
			IsToday: day.Equal(today),
			Density: density,
			Level:   LevelForDensity(density),
		})
	}
	return cells, nil
}

// RequestCalendarAccess asks for consent and publishes the resolved state.
func (c *Coordinator) RequestCalendarAccess(ctx context.Context) (calendar.AuthorizationStatus, error) {
	status, err := c.bridge.RequestAccess(ctx)
	if err != nil {
		return status, err
	}
	c.broker.Notify()
	return status, nil
}

// RefreshCalendar rebuilds the event cache and publishes the change.
func (c *Coordinator) RefreshCalendar(ctx context.Context) error {
	if err := c.bridge.FetchEvents(ctx); err != nil {
		return err
	}
	c.broker.Notify()
	return nil
}

// CalendarStatus reports the bridge state.
func (c *Coordinator) CalendarStatus() CalendarState {
	return CalendarState{
		Status:    c.bridge.Status().String(),
		Loading:   c.bridge.Loading(),
		LastError: c.bridge.LastError(),
	}
}

// Events returns cached calendar events, optionally narrowed to a range.
func (c *Coordinator) Events() []domain.CalendarEvent {
	return c.bridge.Events()
}

// EventsForDay returns cached events overlapping the day containing date.
func (c *Coordinator) EventsForDay(date time.Time) []domain.CalendarEvent {
	return c.bridge.EventsForDate(date)
}

// EventsForRange returns cached events overlapping [start, end).
func (c *Coordinator) EventsForRange(start, end time.Time) []domain.CalendarEvent {
	return c.bridge.EventsForRange(start, end)
}

// SetViewMode switches the active projection and publishes the change.
func (c *Coordinator) SetViewMode(mode ViewMode) {
	c.mu.Lock()
	c.viewMode = mode
	c.mu.Unlock()
	c.broker.Notify()
}

// ViewModeState returns the active projection.
func (c *Coordinator) ViewModeState() ViewMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMode
}

// SetSidebarCollapsed records the sidebar state and publishes the change.
func (c *Coordinator) SetSidebarCollapsed(collapsed bool) {
	c.mu.Lock()
	c.sidebarCollapsed = collapsed
	c.mu.Unlock()
	c.broker.Notify()
}

// SelectTask records the selected task and publishes the change. An empty id
// clears the selection.
func (c *Coordinator) SelectTask(id string) {
	c.mu.Lock()
	c.selectedTaskID = id
	c.mu.Unlock()
	c.broker.Notify()
}

// Snapshot assembles the full published state.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	tasks, err := c.store.List(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	mode := c.viewMode
	collapsed := c.sidebarCollapsed
	selected := c.selectedTaskID
	c.mu.Unlock()
	return Snapshot{
		Tasks:            tasks,
		Events:           c.bridge.Events(),
		ViewMode:         mode,
		SidebarCollapsed: collapsed,
		SelectedTaskID:   selected,
		Calendar:         c.CalendarStatus(),
	}, nil
}

// sortTasks orders most urgent first, then earliest due, then creation order.
func sortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority.Order() != tasks[j].Priority.Order() {
			return tasks[i].Priority.Order() < tasks[j].Priority.Order()
		}
		return tasks[i].DueDate.Before(tasks[j].DueDate)
	})
}

func (c *Coordinator) startOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

func (c *Coordinator) startOfWeek(t time.Time) time.Time {
	day := c.startOfDay(t)
	offset := (int(day.Weekday()) - int(c.weekStart) + 7) % 7
	return day.AddDate(0, 0, -offset)
}
