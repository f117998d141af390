package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"roomsign/internal/model"
)

// SchemaKind selects how a feed document is decoded and normalized.
type SchemaKind string

const (
	// SchemaFlatSeconds is a flat JSON array of veyepar episodes with
	// "HH:MM:SS" durations.
	SchemaFlatSeconds SchemaKind = "flat-array-seconds"
	// SchemaFlatMinutes is a flat JSON array with "[days:]hours:minutes"
	// durations.
	SchemaFlatMinutes SchemaKind = "flat-array-minutes"
	// SchemaDayPartitioned is the frab/pretalx schedule.json layout:
	// {schedule: {version, conference: {days: [...]}}}.
	SchemaDayPartitioned SchemaKind = "day-partitioned-v1.3"
	// SchemaICal is an iCalendar feed where LOCATION names the room.
	SchemaICal SchemaKind = "ical"
)

// ParseSchemaKind validates a configured schema name.
func ParseSchemaKind(s string) (SchemaKind, error) {
	switch k := SchemaKind(strings.TrimSpace(s)); k {
	case SchemaFlatSeconds, SchemaFlatMinutes, SchemaDayPartitioned, SchemaICal:
		return k, nil
	case "":
		return SchemaFlatSeconds, nil
	default:
		return "", fmt.Errorf("unknown feed schema %q", s)
	}
}

// Person is an entry of the "persons" list in frab-style feeds.
type Person struct {
	PublicName string `json:"public_name"`
	Name       string `json:"name"`
}

// RawEvent is the union of the record fields used by the JSON schema
// variants. Unused fields are simply left empty.
type RawEvent struct {
	Title string `json:"title"`
	Name  string `json:"name"`

	Authors string   `json:"authors"`
	Persons []Person `json:"persons"`

	Start    string `json:"start"`
	Date     string `json:"date"`
	Duration string `json:"duration"`

	Location     string `json:"location"`
	LocationSlug string `json:"location_slug"`
	Room         string `json:"room"`
}

// timestampLayouts are tried in order. The first carries a zone; the rest
// are naive and interpreted in the caller's location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Normalize maps one raw record to a model.Event. It is pure: the only
// inputs are the record, the schema and the location used for naive
// timestamps.
func Normalize(raw RawEvent, kind SchemaKind, loc *time.Location) (model.Event, error) {
	if loc == nil {
		loc = time.Local
	}

	var ev model.Event

	ev.Title = strings.TrimSpace(raw.Title)
	if ev.Title == "" {
		ev.Title = strings.TrimSpace(raw.Name)
	}
	ev.Presenters = presenters(raw)

	stamp := raw.Start
	if kind == SchemaDayPartitioned {
		stamp = raw.Date
	}
	start, err := ParseTimestamp(stamp, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %q: %w", ErrInvalidEvent, ev.Title, err)
	}
	ev.Start = start

	d, err := ParseDuration(raw.Duration, kind)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %q: %w", ErrInvalidEvent, ev.Title, err)
	}
	ev.Duration = d

	return ev, nil
}

// ParseTimestamp parses an ISO-8601 style timestamp. Values without a zone
// are taken to be in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}
	for i, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func presenters(raw RawEvent) []string {
	if len(raw.Persons) > 0 {
		out := make([]string, 0, len(raw.Persons))
		for _, p := range raw.Persons {
			name := strings.TrimSpace(p.PublicName)
			if name == "" {
				name = strings.TrimSpace(p.Name)
			}
			if name != "" {
				out = append(out, name)
			}
		}
		return out
	}
	// veyepar "authors" is free text; keep it as written.
	if a := strings.TrimSpace(raw.Authors); a != "" {
		return []string{a}
	}
	return nil
}
