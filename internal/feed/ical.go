package feed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "roomsign/internal/log"
	"roomsign/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// icalEvent is a VEVENT reduced to what the signage needs.
type icalEvent struct {
	UID       string
	Title     string
	Presenter string
	Room      string

	Start time.Time
	End   time.Time

	RawRRule string
	ExDates  []time.Time
}

// decodeICal reads an iCalendar feed. LOCATION selects the room, ORGANIZER's
// CN becomes the presenter. Recurring events are expanded inside
// [opts.WindowStart, opts.WindowEnd].
func decodeICal(body []byte, opts DecodeOptions) (*Schedule, error) {
	// Login pages and proxies tend to answer with HTML and a 200.
	head := bytes.ToUpper(bytes.TrimSpace(body))
	if !bytes.HasPrefix(head, []byte("BEGIN:VCALENDAR")) {
		preview := head
		if len(preview) > 40 {
			preview = preview[:40]
		}
		return nil, fmt.Errorf("%w: expected BEGIN:VCALENDAR, got %q", ErrParse, preview)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	s := &Schedule{Kind: SchemaICal, Rooms: make(map[string]model.RoomSchedule)}

	for _, comp := range cal.Events() {
		ev, err := parseVEvent(comp, opts.Location)
		if err != nil {
			s.skip(err)
			continue
		}
		if ev == nil {
			// Cancelled or all-day; not a talk.
			continue
		}

		for _, occ := range expandICalEvent(*ev, opts) {
			rs := s.Rooms[ev.Room]
			rs.Room = ev.Room
			rs.Events = append(rs.Events, occ)
			s.Rooms[ev.Room] = rs
		}
		s.addRoom(ev.Room, "")
	}

	for name, rs := range s.Rooms {
		rs.Sort()
		s.Rooms[name] = rs
	}

	appLog.Info("feed decode completed", "schema", SchemaICal, "rooms", len(s.Rooms), "skipped", s.Skipped)
	return s, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (*icalEvent, error) {
	var out icalEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return nil, nil
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return nil, fmt.Errorf("%w: %q: missing DTSTART", ErrInvalidEvent, out.Title)
	}
	if !strings.Contains(dtStart.Value, "T") {
		return nil, nil
	}

	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Room = strings.TrimSpace(p.Value)
	}
	if out.Room == "" {
		return nil, fmt.Errorf("%w: %q: missing LOCATION", ErrInvalidEvent, out.Title)
	}

	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		if cn, ok := p.ICalParameters["CN"]; ok && len(cn) > 0 {
			out.Presenter = strings.Trim(cn[0], `"`)
		}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: DTSTART: %w", ErrInvalidEvent, out.Title, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: DTEND: %w", ErrInvalidEvent, out.Title, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %q: %w: DTEND before DTSTART", ErrInvalidEvent, out.Title, ErrInvalidDuration)
	}
	out.Start = start.In(loc)
	out.End = end.In(loc)

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	return &out, nil
}

// expandICalEvent returns the event itself, or every occurrence in the
// window when it has an RRULE.
func expandICalEvent(ev icalEvent, opts DecodeOptions) []model.Event {
	base := model.Event{
		Title:    ev.Title,
		Start:    ev.Start,
		Duration: ev.End.Sub(ev.Start),
	}
	if ev.Presenter != "" {
		base.Presenters = []string{ev.Presenter}
	}

	if ev.RawRRule == "" {
		return []model.Event{base}
	}
	if opts.WindowStart.IsZero() || opts.WindowEnd.IsZero() {
		appLog.Warn("ical recurrence ignored: no expansion window", "uid", ev.UID)
		return []model.Event{base}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ical: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return []model.Event{base}
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	times := set.Between(opts.WindowStart.In(ev.Start.Location()), opts.WindowEnd.In(ev.Start.Location()), true)
	if len(times) > defaultMaxOccurrencesPerEvent {
		appLog.Error("ical: truncated occurrences", errors.New("max occurrences reached"),
			"uid", ev.UID, "cap", defaultMaxOccurrencesPerEvent)
		times = times[:defaultMaxOccurrencesPerEvent]
	}

	out := make([]model.Event, 0, len(times))
	for _, t := range times {
		occ := base
		occ.Start = t
		out = append(out, occ)
	}
	return out
}

// parseICSTime parses EXDATE values in basic UTC, local or date form.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
