package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"nebula-api/domain"
)

type fakeProvider struct {
	accessFn func(ctx context.Context) (bool, error)
	eventsFn func(ctx context.Context, start, end time.Time) ([]domain.CalendarEvent, error)
}

func (f *fakeProvider) RequestAccess(ctx context.Context) (bool, error) {
	if f.accessFn == nil {
		return false, errors.New("unexpected RequestAccess call")
	}
	return f.accessFn(ctx)
}

func (f *fakeProvider) Events(ctx context.Context, start, end time.Time) ([]domain.CalendarEvent, error) {
	if f.eventsFn == nil {
		return nil, errors.New("unexpected Events call")
	}
	return f.eventsFn(ctx, start, end)
}

func TestBridgeFetchBeforeConsentIsNoOp(t *testing.T) {
	var calls int
	b := NewBridge(&fakeProvider{
		eventsFn: func(ctx context.Context, start, end time.Time) ([]domain.CalendarEvent, error) {
			calls++
			return nil, nil
		},
	}, time.UTC, nil)

	if err := b.FetchEvents(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 0 {
		t.Fatalf("provider must not be queried before consent, calls=%d", calls)
	}
	if got := b.Events(); len(got) != 0 {
		t.Fatalf("expected empty cache, got %d events", len(got))
	}
	if b.Status() != StatusNotDetermined {
		t.Fatalf("unexpected status: %v", b.Status())
	}
}

func TestBridgeRequestAccessTransitions(t *testing.T) {
	granted := NewBridge(&fakeProvider{
		accessFn: func(ctx context.Context) (bool, error) { return true, nil },
	}, time.UTC, nil)
	if st, err := granted.RequestAccess(context.Background()); err != nil || st != StatusGranted {
		t.Fatalf("expected granted, got %v / %v", st, err)
	}

	denied := NewBridge(&fakeProvider{
		accessFn: func(ctx context.Context) (bool, error) { return false, nil },
	}, time.UTC, nil)
	if st, err := denied.RequestAccess(context.Background()); err != nil || st != StatusDenied {
		t.Fatalf("expected denied, got %v / %v", st, err)
	}
}

func TestBridgeRequestAccessFailureKeepsStatus(t *testing.T) {
	b := NewBridge(&fakeProvider{
		accessFn: func(ctx context.Context) (bool, error) { return false, errors.New("consent service down") },
	}, time.UTC, nil)

	_, err := b.RequestAccess(context.Background())
	var authErr domain.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if b.Status() != StatusNotDetermined {
		t.Fatalf("failed consent must not change status, got %v", b.Status())
	}
	if b.LastError() == "" {
		t.Fatalf("expected last error to be recorded")
	}
}

func grantBridge(t *testing.T, p *fakeProvider) *Bridge {
	t.Helper()
	p.accessFn = func(ctx context.Context) (bool, error) { return true, nil }
	b := NewBridge(p, time.UTC, nil)
	if _, err := b.RequestAccess(context.Background()); err != nil {
		t.Fatalf("grant: %v", err)
	}
	return b
}

func TestBridgeFetchSortsAndQueriesWindow(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	later := domain.CalendarEvent{Title: "later", Start: day.Add(15 * time.Hour), End: day.Add(16 * time.Hour)}
	earlier := domain.CalendarEvent{Title: "earlier", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}

	var gotStart, gotEnd time.Time
	p := &fakeProvider{
		eventsFn: func(ctx context.Context, start, end time.Time) ([]domain.CalendarEvent, error) {
			gotStart, gotEnd = start, end
			return []domain.CalendarEvent{later, earlier}, nil
		},
	}
	b := grantBridge(t, p)

	if err := b.FetchEvents(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := gotEnd.Sub(gotStart); got != fetchWindowDays*24*time.Hour {
		t.Fatalf("unexpected fetch window: %v", got)
	}
	if gotStart.Hour() != 0 || gotStart.Minute() != 0 {
		t.Fatalf("window must start at midnight, got %v", gotStart)
	}

	events := b.Events()
	if len(events) != 2 || events[0].Title != "earlier" || events[1].Title != "later" {
		t.Fatalf("expected events sorted by start, got %+v", events)
	}
}

func TestBridgeEventsForDateHalfOpen(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	inDay := domain.CalendarEvent{Title: "meeting", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}
	endsAtMidnight := domain.CalendarEvent{Title: "prev-night", Start: day.Add(-2 * time.Hour), End: day}
	allDay := domain.CalendarEvent{Title: "holiday", Start: day, End: day.AddDate(0, 0, 1), AllDay: true}
	multiDay := domain.CalendarEvent{Title: "conference", Start: day.AddDate(0, 0, -1), End: day.AddDate(0, 0, 2)}

	p := &fakeProvider{
		eventsFn: func(ctx context.Context, start, end time.Time) ([]domain.CalendarEvent, error) {
			return []domain.CalendarEvent{inDay, endsAtMidnight, allDay, multiDay}, nil
		},
	}
	b := grantBridge(t, p)
	if err := b.FetchEvents(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	got := b.EventsForDate(day.Add(13 * time.Hour))
	titles := map[string]bool{}
	for _, ev := range got {
		titles[ev.Title] = true
	}
	if len(got) != 3 || !titles["meeting"] || !titles["holiday"] || !titles["conference"] {
		t.Fatalf("unexpected day events: %+v", got)
	}
	if titles["prev-night"] {
		t.Fatalf("event ending exactly at midnight must not appear on the next day")
	}
}

func TestBridgeFetchFailureRetainsCache(t *testing.T) {
	cached := domain.CalendarEvent{Title: "keep", Start: time.Now(), End: time.Now().Add(time.Hour)}
	fail := false
	p := &fakeProvider{
		eventsFn: func(ctx context.Context, start, end time.Time) ([]domain.CalendarEvent, error) {
			if fail {
				return nil, errors.New("upstream timeout")
			}
			return []domain.CalendarEvent{cached}, nil
		},
	}
	b := grantBridge(t, p)

	if err := b.FetchEvents(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	fail = true
	if err := b.FetchEvents(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	if events := b.Events(); len(events) != 1 || events[0].Title != "keep" {
		t.Fatalf("failed fetch must retain the previous cache, got %+v", events)
	}
	if b.LastError() == "" {
		t.Fatalf("expected last error to be recorded")
	}
}

func TestBridgeFetchCoalesced(t *testing.T) {
	release := make(chan struct{})
	var calls int
	p := &fakeProvider{
		eventsFn: func(ctx context.Context, start, end time.Time) ([]domain.CalendarEvent, error) {
			calls++
			<-release
			return nil, nil
		},
	}
	b := grantBridge(t, p)

	done := make(chan error, 1)
	go func() { done <- b.FetchEvents(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for !b.Loading() {
		if time.Now().After(deadline) {
			t.Fatalf("fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := b.FetchEvents(context.Background()); err != nil {
		t.Fatalf("coalesced fetch: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single provider call, got %d", calls)
	}
}
