package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	appLog "roomsign/internal/log"
	"roomsign/internal/model"
)

// DecodeOptions carries the environment the decoders need.
type DecodeOptions struct {
	// Location is used for timestamps that carry no zone. Nil means
	// time.Local.
	Location *time.Location

	// WindowStart / WindowEnd bound recurrence expansion for iCalendar
	// feeds. They are ignored by the JSON variants.
	WindowStart time.Time
	WindowEnd   time.Time
}

// Decode turns a raw feed body into a Schedule. Document-level problems
// wrap ErrParse; bad individual records are logged, skipped and counted.
func Decode(body []byte, kind SchemaKind, opts DecodeOptions) (*Schedule, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrParse)
	}

	switch kind {
	case SchemaFlatSeconds, SchemaFlatMinutes:
		return decodeFlat(body, kind, opts)
	case SchemaDayPartitioned:
		return decodePartitioned(body, opts)
	case SchemaICal:
		return decodeICal(body, opts)
	default:
		return nil, fmt.Errorf("%w: unsupported schema %q", ErrParse, kind)
	}
}

func decodeFlat(body []byte, kind SchemaKind, opts DecodeOptions) (*Schedule, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array of events: %v", ErrParse, err)
	}

	s := &Schedule{Kind: kind, Rooms: make(map[string]model.RoomSchedule)}

	for i, rec := range records {
		var raw RawEvent
		if err := json.Unmarshal(rec, &raw); err != nil {
			s.skip(fmt.Errorf("%w: record %d: %v", ErrInvalidEvent, i, err))
			continue
		}

		room := strings.TrimSpace(raw.Location)
		if room == "" {
			room = strings.TrimSpace(raw.Room)
		}
		if room == "" {
			s.skip(fmt.Errorf("%w: record %d has no location", ErrInvalidEvent, i))
			continue
		}

		ev, err := Normalize(raw, kind, opts.Location)
		if err != nil {
			s.skip(err)
			continue
		}

		s.addRoom(room, strings.TrimSpace(raw.LocationSlug))
		rs := s.Rooms[room]
		rs.Room = room
		rs.Events = append(rs.Events, ev)
		s.Rooms[room] = rs
	}

	for name, rs := range s.Rooms {
		rs.Sort()
		s.Rooms[name] = rs
	}

	appLog.Info("feed decode completed", "schema", kind, "rooms", len(s.Rooms), "skipped", s.Skipped)
	return s, nil
}

type partitionedDoc struct {
	Schedule *struct {
		Version    string `json:"version"`
		Conference *struct {
			Title string   `json:"title"`
			Days  []dayDoc `json:"days"`
		} `json:"conference"`
	} `json:"schedule"`
}

type dayDoc struct {
	Index    int                          `json:"index"`
	Date     string                       `json:"date"`
	DayStart string                       `json:"day_start"`
	DayEnd   string                       `json:"day_end"`
	Rooms    map[string][]json.RawMessage `json:"rooms"`
}

func decodePartitioned(body []byte, opts DecodeOptions) (*Schedule, error) {
	var doc partitionedDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if doc.Schedule == nil || doc.Schedule.Conference == nil {
		return nil, fmt.Errorf("%w: missing schedule.conference", ErrParse)
	}
	if strings.TrimSpace(doc.Schedule.Version) == "" {
		return nil, fmt.Errorf("%w: missing schedule.version", ErrParse)
	}

	s := &Schedule{Kind: SchemaDayPartitioned, Version: doc.Schedule.Version}

	for _, dd := range doc.Schedule.Conference.Days {
		day, err := decodeDay(s, dd, opts)
		if err != nil {
			appLog.Warn("feed day skipped", "index", dd.Index, "date", dd.Date, "err", err)
			continue
		}
		s.Days = append(s.Days, day)
	}

	appLog.Info("feed decode completed",
		"schema", SchemaDayPartitioned,
		"version", s.Version,
		"days", len(s.Days),
		"rooms", len(s.known),
		"skipped", s.Skipped,
	)
	return s, nil
}

func decodeDay(s *Schedule, dd dayDoc, opts DecodeOptions) (model.ConferenceDay, error) {
	start, err := ParseTimestamp(dd.DayStart, opts.Location)
	if err != nil {
		return model.ConferenceDay{}, fmt.Errorf("day_start: %w", err)
	}
	end, err := ParseTimestamp(dd.DayEnd, opts.Location)
	if err != nil {
		return model.ConferenceDay{}, fmt.Errorf("day_end: %w", err)
	}
	if end.Before(start) {
		return model.ConferenceDay{}, errors.New("day_end is before day_start")
	}

	day := model.ConferenceDay{
		Index: dd.Index,
		Date:  dd.Date,
		Start: start,
		End:   end,
		Rooms: make(map[string]model.RoomSchedule, len(dd.Rooms)),
	}

	for room, records := range dd.Rooms {
		rs := model.RoomSchedule{Room: room}
		for i, rec := range records {
			var raw RawEvent
			if err := json.Unmarshal(rec, &raw); err != nil {
				s.skip(fmt.Errorf("%w: %s/%s record %d: %v", ErrInvalidEvent, dd.Date, room, i, err))
				continue
			}
			// Older exports only carry "start" (HH:MM); anchor it on the
			// day's date in the day's zone.
			if strings.TrimSpace(raw.Date) == "" && dd.Date != "" && raw.Start != "" {
				raw.Date = dd.Date + "T" + strings.TrimSpace(raw.Start)
			}
			ev, err := Normalize(raw, SchemaDayPartitioned, start.Location())
			if err != nil {
				s.skip(err)
				continue
			}
			rs.Events = append(rs.Events, ev)
		}
		rs.Sort()
		day.Rooms[room] = rs
		s.addRoom(room, "")
	}

	return day, nil
}

func (s *Schedule) skip(err error) {
	s.Skipped++
	appLog.Warn("feed event skipped", "err", err)
}
