package model

import (
	"sort"
	"time"
)

// Event is a single scheduled talk in one room, after feed normalization.
// Events are built once per feed load and never mutated afterwards.
type Event struct {
	Title      string
	Presenters []string

	Start time.Time
	// Duration is never negative. Depending on the feed it is a whole number
	// of seconds or minutes.
	Duration time.Duration
}

// End returns Start + Duration.
func (e Event) End() time.Time {
	return e.Start.Add(e.Duration)
}

// RoomSchedule is the ordered list of events for exactly one room.
type RoomSchedule struct {
	Room   string
	Events []Event
}

// Sort orders events by start time. Events with equal starts keep their
// feed order, which is what the resolver relies on for tie-breaks.
func (s *RoomSchedule) Sort() {
	sort.SliceStable(s.Events, func(i, j int) bool {
		return s.Events[i].Start.Before(s.Events[j].Start)
	})
}

// ConferenceDay is one day of a day-partitioned feed.
type ConferenceDay struct {
	Index int
	Date  string

	// [Start, End) is the window in which this day is "today".
	Start time.Time
	End   time.Time

	Rooms map[string]RoomSchedule
}

// Contains reports whether at falls in [Start, End).
func (d ConferenceDay) Contains(at time.Time) bool {
	return !at.Before(d.Start) && at.Before(d.End)
}
