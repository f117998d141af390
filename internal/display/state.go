package display

import (
	"time"

	"roomsign/internal/model"
	"roomsign/internal/schedule"
)

// Kind is the display state tag.
type Kind string

const (
	KindLoading        Kind = "loading"
	KindClock          Kind = "clock"
	KindError          Kind = "error"
	KindUnknownRoom    Kind = "unknown-room"
	KindNoEventsToday  Kind = "no-events-today"
	KindFinishedForDay Kind = "finished-for-day"
	KindCurrent        Kind = "current"
	KindUpcoming       Kind = "upcoming"
)

// Lead says how the start of an upcoming event is announced.
type Lead string

const (
	LeadAbsolute     Lead = "absolute"
	LeadRelative     Lead = "relative"
	LeadStartingSoon Lead = "starting-soon"
)

// State is what the sign shows. Only the fields relevant to Kind are set;
// turning it into text is the Formatter's job.
type State struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`

	// Message is the error text (KindError) or the static message
	// (KindClock).
	Message string `json:"message,omitempty"`

	Room       string   `json:"room,omitempty"`
	ValidRooms []string `json:"valid_rooms,omitempty"`

	Title      string        `json:"title,omitempty"`
	Presenters []string      `json:"presenters,omitempty"`
	StartsAt   *time.Time    `json:"starts_at,omitempty"`
	Lead       Lead          `json:"lead,omitempty"`
	Until      time.Duration `json:"-"`
}

// Input collects every signal the mapper needs for one evaluation.
type Input struct {
	// Err is a terminal feed error.
	Err error

	Room       string
	RoomKnown  bool
	ValidRooms []string

	// DayFound is always true for feeds that are not day-partitioned.
	DayFound bool

	Resolved schedule.Resolved
	At       time.Time

	// StartingSoon folds upcoming events that start within this window
	// into LeadStartingSoon.
	StartingSoon time.Duration
	// Relative selects LeadRelative over LeadAbsolute.
	Relative bool
}

// Map turns resolver output and its context into a State. Precedence:
// error, unknown room, no conference day, finished, then current/upcoming.
func Map(in Input) State {
	st := State{At: in.At, Room: in.Room}

	switch {
	case in.Err != nil:
		st.Kind = KindError
		st.Message = in.Err.Error()

	case !in.RoomKnown:
		st.Kind = KindUnknownRoom
		st.ValidRooms = in.ValidRooms

	case !in.DayFound:
		st.Kind = KindNoEventsToday

	case in.Resolved.Kind == schedule.Current:
		st.Kind = KindCurrent
		setEvent(&st, in.Resolved.Event)

	case in.Resolved.Kind == schedule.Upcoming:
		st.Kind = KindUpcoming
		setEvent(&st, in.Resolved.Event)
		st.Until = in.Resolved.Event.Start.Sub(in.At)
		switch {
		case st.Until <= in.StartingSoon:
			st.Lead = LeadStartingSoon
		case in.Relative:
			st.Lead = LeadRelative
		default:
			st.Lead = LeadAbsolute
		}

	default:
		st.Kind = KindFinishedForDay
	}

	return st
}

// Loading is shown until the feed has been loaded.
func Loading(at time.Time) State {
	return State{Kind: KindLoading, At: at}
}

// Clock is the clock-only state with an optional static message.
func Clock(at time.Time, message string) State {
	return State{Kind: KindClock, At: at, Message: message}
}

func setEvent(st *State, e model.Event) {
	start := e.Start
	st.Title = e.Title
	st.Presenters = e.Presenters
	st.StartsAt = &start
}
