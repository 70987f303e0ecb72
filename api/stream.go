package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"nebula-api/views"
)

// streamSnapshots serves the coordinator state over SSE. A full snapshot is
// written on connect and again after every published change.
func streamSnapshots(coord *views.Coordinator, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		if _, err := auth.UserIDFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := coord.Broker().Subscribe()
		defer coord.Broker().Unsubscribe(ch)

		for {
			snapshot, err := coord.Snapshot(ctx)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				continue
			}
		}
	}
}
