package schedule

import (
	"time"

	"roomsign/internal/model"
)

// ResolvedKind tags the result of Resolve.
type ResolvedKind int

const (
	// None means nothing is current and nothing is coming up.
	None ResolvedKind = iota
	// Current means Event is running now.
	Current
	// Upcoming means Event is the next event to start.
	Upcoming
)

func (k ResolvedKind) String() string {
	switch k {
	case Current:
		return "current"
	case Upcoming:
		return "upcoming"
	default:
		return "none"
	}
}

// Resolved is the outcome of resolving one room at one instant. Event is
// the zero value when Kind is None.
type Resolved struct {
	Kind  ResolvedKind
	Event model.Event
}

// Resolve finds the current event of s at the instant at, or else the
// earliest event starting after at.
//
// An event is current when Start <= at < p.EffectiveEnd(event). If events
// overlap, the first one in s wins. Among upcoming events with equal
// starts, the first one in s wins as well.
func Resolve(s model.RoomSchedule, at time.Time, p EndWindowPolicy) Resolved {
	var (
		next  model.Event
		found bool
	)

	for _, e := range s.Events {
		if !e.Start.After(at) && at.Before(p.EffectiveEnd(e)) {
			return Resolved{Kind: Current, Event: e}
		}
		if e.Start.After(at) && (!found || e.Start.Before(next.Start)) {
			next = e
			found = true
		}
	}

	if found {
		return Resolved{Kind: Upcoming, Event: next}
	}
	return Resolved{Kind: None}
}
