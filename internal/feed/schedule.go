package feed

import (
	"sort"
	"strings"

	"roomsign/internal/model"
)

// Room identifies a room as named by the feed. Slug is empty for feeds that
// have no slug field.
type Room struct {
	Name string
	Slug string
}

// Schedule is a fully normalized feed, ready for resolution. It is built
// once per load and only read afterwards.
type Schedule struct {
	Kind    SchemaKind
	Version string

	// Days is set for day-partitioned feeds, in feed order.
	Days []model.ConferenceDay

	// Rooms is set for flat feeds, keyed by Room.Name.
	Rooms map[string]model.RoomSchedule

	// Skipped counts records dropped by normalization.
	Skipped int

	known map[string]Room
}

// Partitioned reports whether resolution has to go through day selection.
func (s *Schedule) Partitioned() bool {
	return s.Kind == SchemaDayPartitioned
}

// LookupRoom resolves a configured room identifier (name or slug) to the
// room name used as key in Rooms / ConferenceDay.Rooms.
func (s *Schedule) LookupRoom(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	if r, ok := s.known[id]; ok {
		return r.Name, true
	}
	for _, r := range s.known {
		if r.Slug != "" && r.Slug == id {
			return r.Name, true
		}
	}
	return "", false
}

// RoomOptions lists the identifiers a user may configure, sorted. Slugs are
// preferred over names where the feed provides them.
func (s *Schedule) RoomOptions() []string {
	out := make([]string, 0, len(s.known))
	for _, r := range s.known {
		if r.Slug != "" {
			out = append(out, r.Slug)
		} else {
			out = append(out, r.Name)
		}
	}
	sort.Strings(out)
	return out
}

// KnownRooms returns every room seen in the feed, sorted by name.
func (s *Schedule) KnownRooms() []Room {
	out := make([]Room, 0, len(s.known))
	for _, r := range s.known {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Schedule) addRoom(name, slug string) {
	if s.known == nil {
		s.known = make(map[string]Room)
	}
	r, ok := s.known[name]
	if !ok {
		s.known[name] = Room{Name: name, Slug: slug}
		return
	}
	if r.Slug == "" && slug != "" {
		r.Slug = slug
		s.known[name] = r
	}
}

// NewFlatSchedule builds a flat schedule directly from room schedules. The
// decoders use the same path; it is exported for callers that assemble
// events themselves.
func NewFlatSchedule(kind SchemaKind, rooms ...model.RoomSchedule) *Schedule {
	s := &Schedule{Kind: kind, Rooms: make(map[string]model.RoomSchedule, len(rooms))}
	for _, rs := range rooms {
		rs.Sort()
		s.Rooms[rs.Room] = rs
		s.addRoom(rs.Room, "")
	}
	return s
}

// NewPartitionedSchedule builds a day-partitioned schedule from days in feed
// order.
func NewPartitionedSchedule(days ...model.ConferenceDay) *Schedule {
	s := &Schedule{Kind: SchemaDayPartitioned, Days: days}
	for i := range s.Days {
		for name, rs := range s.Days[i].Rooms {
			rs.Sort()
			s.Days[i].Rooms[name] = rs
			s.addRoom(name, "")
		}
	}
	return s
}
