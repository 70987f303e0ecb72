package calendar

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"nebula-api/domain"
)

// AuthorizationStatus gates access to the external calendar provider.
// NotDetermined transitions to Granted or Denied exactly once per consent
// request; only Granted allows fetches.
type AuthorizationStatus int

const (
	StatusNotDetermined AuthorizationStatus = iota
	StatusGranted
	StatusDenied
)

func (s AuthorizationStatus) String() string {
	switch s {
	case StatusGranted:
		return "granted"
	case StatusDenied:
		return "denied"
	default:
		return "notDetermined"
	}
}

// fetchWindowDays is the rolling window queried from the provider.
const fetchWindowDays = 30

// EventProvider is the external read-only event source behind the bridge.
type EventProvider interface {
	// RequestAccess asks for consent and reports whether it was granted.
	RequestAccess(ctx context.Context) (bool, error)
	// Events returns every provider event intersecting [start, end).
	Events(ctx context.Context, start, end time.Time) ([]domain.CalendarEvent, error)
}

// Bridge mediates access to an external calendar. It holds a read-only cache
// of provider events which is invalidated wholesale and rebuilt on each
// fetch, never patched incrementally.
type Bridge struct {
	provider EventProvider
	loc      *time.Location
	logger   *log.Logger

	mu      sync.Mutex
	status  AuthorizationStatus
	events  []domain.CalendarEvent
	loading bool
	lastErr string
}

// NewBridge creates a bridge over the given provider. Day boundaries are
// computed in loc; pass nil for time.Local.
func NewBridge(provider EventProvider, loc *time.Location, logger *log.Logger) *Bridge {
	if provider == nil {
		panic("calendar.NewBridge: provider is nil")
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.New()
	}
	return &Bridge{provider: provider, loc: loc, logger: logger}
}

// Status returns the current authorization state.
func (b *Bridge) Status() AuthorizationStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Loading reports whether a fetch is in flight.
func (b *Bridge) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// LastError returns the most recent provider error message, empty when the
// last operation succeeded.
func (b *Bridge) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// RequestAccess asks the provider for consent, blocking until it responds.
// On provider failure the status is left unchanged and the error is recorded.
func (b *Bridge) RequestAccess(ctx context.Context) (AuthorizationStatus, error) {
	granted, err := b.provider.RequestAccess(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.lastErr = err.Error()
		b.logger.WithError(err).Error("calendar access request failed")
		return b.status, domain.AuthorizationError{Reason: err.Error()}
	}
	if granted {
		b.status = StatusGranted
	} else {
		b.status = StatusDenied
	}
	b.lastErr = ""
	b.logger.WithField("status", b.status.String()).Info("calendar access resolved")
	return b.status, nil
}

// FetchEvents queries the provider for all events intersecting
// [startOfToday, startOfToday+30d) and swaps the cache atomically on
// completion. It is a no-op unless authorization is Granted, and a second
// call while one is in flight is coalesced into the running one. On failure
// the previous cache is retained.
func (b *Bridge) FetchEvents(ctx context.Context) error {
	b.mu.Lock()
	if b.status != StatusGranted {
		b.mu.Unlock()
		return nil
	}
	if b.loading {
		b.mu.Unlock()
		return nil
	}
	b.loading = true
	b.lastErr = ""
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.loading = false
		b.mu.Unlock()
	}()

	start := startOfDay(time.Now().In(b.loc))
	end := start.AddDate(0, 0, fetchWindowDays)

	events, err := b.provider.Events(ctx, start, end)
	if err != nil {
		b.mu.Lock()
		b.lastErr = err.Error()
		b.mu.Unlock()
		b.logger.WithError(err).Error("calendar fetch failed; keeping previous cache")
		return err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	b.mu.Lock()
	b.events = events
	b.mu.Unlock()
	b.logger.WithField("event_count", len(events)).Debug("calendar cache rebuilt")
	return nil
}

// Events returns a copy of the cached events.
func (b *Bridge) Events() []domain.CalendarEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.CalendarEvent(nil), b.events...)
}

// EventsForDate returns cached events overlapping the calendar day containing
// date. All-day and multi-day events that merely touch the day are included.
func (b *Bridge) EventsForDate(date time.Time) []domain.CalendarEvent {
	start := startOfDay(date.In(b.loc))
	return b.EventsForRange(start, start.AddDate(0, 0, 1))
}

// EventsForRange returns cached events overlapping the half-open window
// [start, end).
func (b *Bridge) EventsForRange(start, end time.Time) []domain.CalendarEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []domain.CalendarEvent{}
	for _, ev := range b.events {
		if ev.Overlaps(start, end) {
			out = append(out, ev)
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
