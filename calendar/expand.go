package calendar

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"nebula-api/domain"
)

// maxOccurrencesPerEvent caps recurrence expansion so a malformed rule cannot
// flood the cache.
const maxOccurrencesPerEvent = 1000

// parsedEvent is the normalized form of a VEVENT before recurrence expansion.
type parsedEvent struct {
	uid         string
	summary     string
	description string
	location    string
	start       time.Time
	end         time.Time
	allDay      bool
	rawRRule    string
	exDates     []time.Time
	recurrence  *time.Time
}

// expandICS parses an ICS payload and expands it into concrete events
// intersecting [rangeStart, rangeEnd).
func expandICS(feed Feed, body []byte, rangeStart, rangeEnd time.Time) ([]domain.CalendarEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	base := []parsedEvent{}
	overridesByUID := make(map[string][]parsedEvent)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			// A single malformed VEVENT must not poison the rest of the feed.
			continue
		}
		if ev.recurrence != nil {
			overridesByUID[ev.uid] = append(overridesByUID[ev.uid], ev)
		} else {
			base = append(base, ev)
		}
	}

	out := []domain.CalendarEvent{}
	for _, ev := range base {
		for _, occ := range expandEvent(ev, overridesByUID[ev.uid], rangeStart, rangeEnd) {
			out = append(out, makeEvent(feed, occ))
		}
	}
	// Overridden instances are concrete events in their own right.
	for _, ovs := range overridesByUID {
		for _, ov := range ovs {
			if overlaps(ov.start, ov.end, rangeStart, rangeEnd) {
				out = append(out, makeEvent(feed, ov))
			}
		}
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var ev parsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.uid = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.location = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, err
	}
	ev.start = start
	if end, err := ve.GetEndAt(); err == nil {
		ev.end = end
	}

	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				ev.allDay = true
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			ev.allDay = true
		}
	}
	if ev.allDay {
		day := startOfDay(ev.start)
		ev.start = day
		if !ev.end.After(day) {
			ev.end = day.AddDate(0, 0, 1)
		}
	} else if !ev.end.After(ev.start) {
		ev.end = ev.start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.rawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				ev.exDates = append(ev.exDates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			ev.recurrence = &t
		}
	}
	return ev, nil
}

// expandEvent yields the concrete occurrences of ev inside
// [rangeStart, rangeEnd), minus occurrences replaced by an override.
func expandEvent(ev parsedEvent, overrides []parsedEvent, rangeStart, rangeEnd time.Time) []parsedEvent {
	if ev.rawRRule == "" {
		if overlaps(ev.start, ev.end, rangeStart, rangeEnd) {
			return []parsedEvent{ev}
		}
		return nil
	}

	r, err := rrule.StrToRRule(ev.rawRRule)
	if err != nil {
		return nil
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	occTimes := set.Between(rangeStart.In(ev.start.Location()), rangeEnd.In(ev.start.Location()), true)
	if len(occTimes) > maxOccurrencesPerEvent {
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	duration := ev.end.Sub(ev.start)
	out := make([]parsedEvent, 0, len(occTimes))
	for _, occStart := range occTimes {
		if overridden(occStart, overrides) {
			continue
		}
		occ := ev
		if ev.allDay {
			occ.start = startOfDay(occStart)
			occ.end = occ.start.AddDate(0, 0, 1)
		} else {
			occ.start = occStart
			occ.end = occStart.Add(duration)
		}
		if !overlaps(occ.start, occ.end, rangeStart, rangeEnd) {
			continue
		}
		out = append(out, occ)
	}
	return out
}

func overridden(occStart time.Time, overrides []parsedEvent) bool {
	for _, ov := range overrides {
		if ov.recurrence != nil && ov.recurrence.In(occStart.Location()).Equal(occStart) {
			return true
		}
	}
	return false
}

func makeEvent(feed Feed, ev parsedEvent) domain.CalendarEvent {
	calName := feed.Name
	if calName == "" {
		calName = feed.ID
	}
	color := feed.Color
	if color == "" {
		color = domain.ColorForCalendar(calName)
	}
	return domain.CalendarEvent{
		Title:    ev.summary,
		Start:    ev.start,
		End:      ev.end,
		Location: ev.location,
		Notes:    ev.description,
		AllDay:   ev.allDay,
		Calendar: calName,
		Color:    color,
	}
}

// overlaps tests half-open interval intersection: touching boundaries do not
// count.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// parseICSTime parses the basic ICS date / date-time forms used by EXDATE and
// RECURRENCE-ID values.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}
	return time.ParseInLocation("20060102", v, time.Local)
}
