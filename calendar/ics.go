package calendar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"nebula-api/domain"
)

// Feed describes one subscribed ICS calendar.
type Feed struct {
	ID    string
	URL   string
	Name  string
	Color string
}

const fetchTimeout = 15 * time.Second

// ICSProvider implements EventProvider over a set of ICS feed subscriptions.
// Fetches honor ETag / Last-Modified and fall back to the last good body on
// network failure, so a flaky feed degrades to stale-but-valid data.
type ICSProvider struct {
	feeds  []Feed
	client *http.Client
	logger *log.Logger

	mu    sync.Mutex
	state map[string]*feedState
}

type feedState struct {
	etag         string
	lastModified string
	body         []byte
}

// NewICSProvider creates a provider over the given feeds.
func NewICSProvider(feeds []Feed, logger *log.Logger) *ICSProvider {
	if logger == nil {
		logger = log.New()
	}
	return &ICSProvider{
		feeds:  feeds,
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
		state:  make(map[string]*feedState),
	}
}

// RequestAccess grants access when at least one feed is configured. There is
// no OS consent dialog behind an ICS subscription; an empty feed list is the
// denied state.
func (p *ICSProvider) RequestAccess(ctx context.Context) (bool, error) {
	return len(p.feeds) > 0, nil
}

// Events fetches every feed and returns all occurrences intersecting
// [start, end). Individual feed failures are logged and skipped; the call
// fails only when every feed fails and nothing cached remains.
func (p *ICSProvider) Events(ctx context.Context, start, end time.Time) ([]domain.CalendarEvent, error) {
	all := []domain.CalendarEvent{}
	var firstErr error
	failures := 0

	for _, feed := range p.feeds {
		body, err := p.fetchFeed(ctx, feed)
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
			p.logger.WithError(err).WithField("feed", feed.ID).Error("ics fetch failed")
			continue
		}
		events, err := expandICS(feed, body, start, end)
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
			p.logger.WithError(err).WithField("feed", feed.ID).Error("ics parse failed")
			continue
		}
		all = append(all, events...)
	}

	if failures == len(p.feeds) && len(p.feeds) > 0 {
		return nil, firstErr
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })
	return all, nil
}

// fetchFeed performs a conditional GET against the feed URL. A 304 or a
// network failure reuses the last good body when one exists.
func (p *ICSProvider) fetchFeed(ctx context.Context, feed Feed) ([]byte, error) {
	if feed.URL == "" {
		return nil, errors.New("feed URL is empty")
	}

	p.mu.Lock()
	st := p.state[feed.URL]
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, err
	}
	if st != nil {
		if st.etag != "" {
			req.Header.Set("If-None-Match", st.etag)
		}
		if st.lastModified != "" {
			req.Header.Set("If-Modified-Since", st.lastModified)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if st != nil && len(st.body) > 0 {
			p.logger.WithError(err).WithField("feed", feed.ID).Warn("ics network error, using cached body")
			return st.body, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.state[feed.URL] = &feedState{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		p.mu.Unlock()
		return body, nil

	case http.StatusNotModified:
		if st == nil || len(st.body) == 0 {
			return nil, errors.New("304 Not Modified without a cached body")
		}
		return st.body, nil

	default:
		if st != nil && len(st.body) > 0 {
			p.logger.WithField("feed", feed.ID).WithField("status", resp.StatusCode).Warn("ics non-OK status, using cached body")
			return st.body, nil
		}
		return nil, errors.New(resp.Status)
	}
}
