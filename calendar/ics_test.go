package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func icsBody(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//nebula//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

func TestExpandICSSingleAndRecurring(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:single-1",
		"DTSTAMP:20240601T000000Z",
		"DTSTART:20240610T090000Z",
		"DTEND:20240610T100000Z",
		"SUMMARY:Standup",
		"LOCATION:Room 4",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:daily-1",
		"DTSTAMP:20240601T000000Z",
		"DTSTART:20240610T120000Z",
		"DTEND:20240610T123000Z",
		"RRULE:FREQ=DAILY;COUNT=5",
		"EXDATE:20240612T120000Z",
		"SUMMARY:Lunch walk",
		"END:VEVENT",
	)

	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)
	feed := Feed{ID: "personal", URL: "http://example.invalid/cal.ics", Name: "Personal"}

	events, err := expandICS(feed, body, start, end)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	var standups, walks int
	for _, ev := range events {
		switch ev.Title {
		case "Standup":
			standups++
			if ev.Location != "Room 4" || ev.Calendar != "Personal" || ev.Color != "green" {
				t.Fatalf("unexpected event: %+v", ev)
			}
		case "Lunch walk":
			walks++
			if ev.Start.Day() == 12 {
				t.Fatalf("excluded occurrence was expanded: %+v", ev)
			}
		default:
			t.Fatalf("unexpected title %q", ev.Title)
		}
	}
	if standups != 1 {
		t.Fatalf("expected 1 standup, got %d", standups)
	}
	// 5 daily occurrences, one excluded, one past the query range.
	if walks != 4 {
		t.Fatalf("expected 4 walk occurrences, got %d", walks)
	}
}

func TestExpandICSAllDay(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:allday-1",
		"DTSTAMP:20240601T000000Z",
		"DTSTART;VALUE=DATE:20240611",
		"SUMMARY:Holiday",
		"END:VEVENT",
	)

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	events, err := expandICS(Feed{ID: "f"}, body, start, start.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if !ev.AllDay {
		t.Fatalf("expected all-day event: %+v", ev)
	}
	if ev.Start.Hour() != 0 || ev.Start.Day() != 11 {
		t.Fatalf("all-day event must start at midnight of its date, got %v", ev.Start)
	}
	if got := ev.End.Sub(ev.Start); got != 24*time.Hour {
		t.Fatalf("all-day event must span one day, got %v", got)
	}
}

func TestExpandICSRecurrenceOverride(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"DTSTAMP:20240601T000000Z",
		"DTSTART:20240610T090000Z",
		"DTEND:20240610T093000Z",
		"RRULE:FREQ=DAILY;COUNT=3",
		"SUMMARY:Checkin",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"DTSTAMP:20240601T000000Z",
		"RECURRENCE-ID:20240611T090000Z",
		"DTSTART:20240611T150000Z",
		"DTEND:20240611T153000Z",
		"SUMMARY:Checkin (moved)",
		"END:VEVENT",
	)

	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	events, err := expandICS(Feed{ID: "f"}, body, start, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}

	var moved int
	for _, ev := range events {
		if ev.Start.Day() == 11 {
			if ev.Title != "Checkin (moved)" || ev.Start.Hour() != 15 {
				t.Fatalf("override was not applied: %+v", ev)
			}
			moved++
		}
	}
	if moved != 1 {
		t.Fatalf("expected exactly one overridden occurrence, got %d", moved)
	}
}

func TestICSProviderRequestAccess(t *testing.T) {
	ctx := context.Background()
	empty := NewICSProvider(nil, nil)
	if granted, err := empty.RequestAccess(ctx); err != nil || granted {
		t.Fatalf("expected denial without feeds, got %v / %v", granted, err)
	}

	p := NewICSProvider([]Feed{{ID: "f", URL: "http://example.invalid"}}, nil)
	if granted, err := p.RequestAccess(ctx); err != nil || !granted {
		t.Fatalf("expected grant with feeds, got %v / %v", granted, err)
	}
}

func TestICSProviderConditionalFetch(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:single-1",
		"DTSTAMP:20240601T000000Z",
		"DTSTART:20240610T090000Z",
		"DTEND:20240610T100000Z",
		"SUMMARY:Standup",
		"END:VEVENT",
	)

	var requests, conditional int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional++
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	p := NewICSProvider([]Feed{{ID: "f", URL: srv.URL, Name: "Work"}}, nil)
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	for i := 0; i < 2; i++ {
		events, err := p.Events(context.Background(), start, end)
		if err != nil {
			t.Fatalf("events %d: %v", i, err)
		}
		if len(events) != 1 || events[0].Title != "Standup" {
			t.Fatalf("events %d: unexpected result %+v", i, events)
		}
	}
	if requests != 2 || conditional != 1 {
		t.Fatalf("expected a conditional revalidation, requests=%d conditional=%d", requests, conditional)
	}
}

func TestICSProviderStaleBodyOnServerError(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:single-1",
		"DTSTAMP:20240601T000000Z",
		"DTSTART:20240610T090000Z",
		"DTEND:20240610T100000Z",
		"SUMMARY:Standup",
		"END:VEVENT",
	)

	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	p := NewICSProvider([]Feed{{ID: "f", URL: srv.URL}}, nil)
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	if _, err := p.Events(context.Background(), start, end); err != nil {
		t.Fatalf("warm fetch: %v", err)
	}
	healthy = false
	events, err := p.Events(context.Background(), start, end)
	if err != nil {
		t.Fatalf("stale fetch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected stale body to serve events, got %+v", events)
	}
}

func TestICSProviderAllFeedsFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewICSProvider([]Feed{{ID: "f", URL: srv.URL}}, nil)
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	if _, err := p.Events(context.Background(), start, start.AddDate(0, 0, 1)); err == nil {
		t.Fatalf("expected error when every feed fails with no cache")
	}
}
