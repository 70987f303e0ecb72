package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type flushRecorder struct{ *httptest.ResponseRecorder }

func (flushRecorder) Flush() {}

func TestStreamSendsInitialSnapshot(t *testing.T) {
	e := echo.New()
	coord := newTestCoordinator(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := flushRecorder{httptest.NewRecorder()}
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)
	c := e.NewContext(req, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- streamSnapshots(coord, mockAuth{})(c) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("handler error: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") || !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("not an SSE frame: %q", body)
	}
	if !strings.Contains(body, `"tasks"`) || !strings.Contains(body, `"viewMode"`) {
		t.Fatalf("snapshot fields missing: %q", body)
	}
}

func TestStreamAcceptsQueryToken(t *testing.T) {
	e := echo.New()
	coord := newTestCoordinator(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stream?token=abc", nil)
	rec := flushRecorder{httptest.NewRecorder()}
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)
	c := e.NewContext(req, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- streamSnapshots(coord, mockAuth{})(c) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code == http.StatusUnauthorized {
		t.Fatalf("query token must satisfy auth")
	}
}
