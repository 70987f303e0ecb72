package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"nebula-api/domain"
	"nebula-api/views"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, coord *views.Coordinator, auth Authenticator, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(coord, auth, logger))
	e.POST("/api/tasks", createTask(coord, auth))
	e.GET("/api/tasks/:id", getTask(coord, auth))
	e.PATCH("/api/tasks/:id", patchTask(coord, auth))
	e.DELETE("/api/tasks/:id", deleteTask(coord, auth))
	e.POST("/api/tasks/:id/toggle", toggleTask(coord, auth))

	e.GET("/api/views/day", getDayView(coord, auth))
	e.GET("/api/views/week", getWeekView(coord, auth))
	e.GET("/api/views/month", getMonthView(coord, auth))
	e.POST("/api/view-state", postViewState(coord, auth))

	e.GET("/api/events", getEvents(coord, auth))
	e.GET("/api/calendar/status", getCalendarStatus(coord, auth))
	e.POST("/api/calendar/access", postCalendarAccess(coord, auth))
	e.POST("/api/calendar/refresh", postCalendarRefresh(coord, auth))

	e.GET("/api/stream", streamSnapshots(coord, auth))
	e.GET("/healthz", healthz(coord))
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type dayViewResponse struct {
	Date   time.Time              `json:"date"`
	Tasks  []domain.Task          `json:"tasks"`
	Events []domain.CalendarEvent `json:"events"`
}

type weekViewResponse struct {
	Days []views.DayTasks `json:"days"`
}

type monthViewResponse struct {
	Cells []views.MonthCell `json:"cells"`
}

func healthz(coord *views.Coordinator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := coord.Tasks(c.Request().Context()); err != nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	}
}

// writeError maps domain errors onto HTTP statuses. Persistence failures are
// surfaced, never swallowed; the process stays up.
func writeError(c echo.Context, err error) error {
	var nf domain.NotFoundError
	var verr domain.ValidationError
	var perr domain.PersistenceError
	switch {
	case errors.As(err, &nf):
		return c.String(http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.As(err, &perr):
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func getTasks(coord *views.Coordinator, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		listStart := time.Now()
		tasks, listErr := coord.Tasks(ctx)
		metrics.ObserveList(time.Since(listStart))
		if listErr != nil {
			metrics.SetErrorStage("storage")
			err = writeError(c, listErr)
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func createTask(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := coord.CreateTask(c.Request().Context(), req.Title, req.Description, req.DueDate,
			domain.ParsePriority(req.Priority), domain.ParseCategory(req.Category))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func getTask(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		task, err := coord.Task(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func patchTask(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		fields := domain.TaskFields{
			Title:       req.Title,
			Description: req.Description,
			DueDate:     req.DueDate,
			IsCompleted: req.IsCompleted,
		}
		if req.Priority != nil {
			p := domain.ParsePriority(*req.Priority)
			fields.Priority = &p
		}
		if req.Category != nil {
			cat := domain.ParseCategory(*req.Category)
			fields.Category = &cat
		}
		task, err := coord.UpdateTask(c.Request().Context(), c.Param("id"), fields)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := coord.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleTask(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		task, err := coord.ToggleTask(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

// dateParam reads the date query parameter as YYYY-MM-DD in the coordinator's
// timezone, defaulting to today.
func dateParam(c echo.Context, coord *views.Coordinator) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return time.Now().In(coord.Location()), nil
	}
	return time.ParseInLocation("2006-01-02", raw, coord.Location())
}

func getDayView(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		date, err := dateParam(c, coord)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid date")
		}
		tasks, err := coord.TasksForDay(c.Request().Context(), date)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, dayViewResponse{
			Date:   date,
			Tasks:  tasks,
			Events: coord.EventsForDay(date),
		})
	}
}

func getWeekView(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		date, err := dateParam(c, coord)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid date")
		}
		days, err := coord.TasksForWeek(c.Request().Context(), date)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, weekViewResponse{Days: days})
	}
}

func getMonthView(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		date, err := dateParam(c, coord)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid date")
		}
		cells, err := coord.MonthCells(c.Request().Context(), date)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, monthViewResponse{Cells: cells})
	}
}

func postViewState(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req viewStateRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.ViewMode != nil {
			coord.SetViewMode(views.ParseViewMode(*req.ViewMode))
		}
		if req.SidebarCollapsed != nil {
			coord.SetSidebarCollapsed(*req.SidebarCollapsed)
		}
		if req.SelectedTaskID != nil {
			coord.SelectTask(*req.SelectedTaskID)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getEvents(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		fromRaw, toRaw := c.QueryParam("from"), c.QueryParam("to")
		if fromRaw == "" && toRaw == "" {
			return c.JSON(http.StatusOK, coord.Events())
		}
		from, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid from")
		}
		to, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid to")
		}
		return c.JSON(http.StatusOK, coord.EventsForRange(from, to))
	}
}

func getCalendarStatus(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		return c.JSON(http.StatusOK, coord.CalendarStatus())
	}
}

func postCalendarAccess(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		status, err := coord.RequestCalendarAccess(c.Request().Context())
		if err != nil {
			var authErr domain.AuthorizationError
			if errors.As(err, &authErr) {
				return c.String(http.StatusBadGateway, err.Error())
			}
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, calendarAccessResponse{Status: status.String()})
	}
}

func postCalendarRefresh(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := coord.RefreshCalendar(c.Request().Context()); err != nil {
			return c.String(http.StatusBadGateway, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}
