package domain

import (
	"strings"
	"time"
)

// CalendarEvent is a read-only projection of an externally owned calendar
// entry. The application never mutates these; they are cached copies rebuilt
// on every fetch.
type CalendarEvent struct {
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	AllDay   bool      `json:"allDay"`
	Calendar string    `json:"calendar"`
	Color    string    `json:"color"`
}

// Duration reports how long the event lasts.
func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps reports whether the event intersects the half-open window
// [start, end). An event ending exactly at start, or starting exactly at end,
// does not overlap.
func (e CalendarEvent) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// ColorForCalendar picks a display color key for events whose source calendar
// carries no configured color, keyed on the calendar label.
func ColorForCalendar(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "work") || strings.Contains(l, "business"):
		return "blue"
	case strings.Contains(l, "personal") || strings.Contains(l, "home"):
		return "green"
	case strings.Contains(l, "health") || strings.Contains(l, "fitness"):
		return "red"
	case strings.Contains(l, "travel") || strings.Contains(l, "vacation"):
		return "orange"
	default:
		return "purple"
	}
}
