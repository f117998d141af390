package display

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomsign/internal/model"
	"roomsign/internal/schedule"
)

var now = time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)

func talk(startIn time.Duration) model.Event {
	return model.Event{
		Title:      "Keeping time",
		Presenters: []string{"Ada", "Charles"},
		Start:      now.Add(startIn),
		Duration:   30 * time.Minute,
	}
}

func baseInput() Input {
	return Input{
		Room:         "Main",
		RoomKnown:    true,
		ValidRooms:   []string{"Main", "Side"},
		DayFound:     true,
		At:           now,
		StartingSoon: 60 * time.Second,
	}
}

func TestMapPrecedence(t *testing.T) {
	current := schedule.Resolved{Kind: schedule.Current, Event: talk(-time.Minute)}

	in := baseInput()
	in.Err = errors.New("feed: network error: HTTP 502 Bad Gateway")
	in.RoomKnown = false
	in.DayFound = false
	in.Resolved = current
	st := Map(in)
	assert.Equal(t, KindError, st.Kind)
	assert.Equal(t, "feed: network error: HTTP 502 Bad Gateway", st.Message)

	in.Err = nil
	st = Map(in)
	assert.Equal(t, KindUnknownRoom, st.Kind)
	assert.Equal(t, []string{"Main", "Side"}, st.ValidRooms)

	in.RoomKnown = true
	st = Map(in)
	assert.Equal(t, KindNoEventsToday, st.Kind)

	in.DayFound = true
	in.Resolved = schedule.Resolved{Kind: schedule.None}
	st = Map(in)
	assert.Equal(t, KindFinishedForDay, st.Kind)
	assert.Equal(t, "Main", st.Room)

	in.Resolved = current
	st = Map(in)
	assert.Equal(t, KindCurrent, st.Kind)
	assert.Equal(t, "Keeping time", st.Title)
	require.NotNil(t, st.StartsAt)
	assert.True(t, st.StartsAt.Equal(now.Add(-time.Minute)))
}

func TestMapUpcomingLead(t *testing.T) {
	tests := []struct {
		name     string
		startIn  time.Duration
		relative bool
		want     Lead
	}{
		{"Inside threshold", 30 * time.Second, false, LeadStartingSoon},
		{"Exactly at threshold", 60 * time.Second, true, LeadStartingSoon},
		{"Absolute", 61 * time.Second, false, LeadAbsolute},
		{"Relative", 10 * time.Minute, true, LeadRelative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			in.Relative = tt.relative
			in.Resolved = schedule.Resolved{Kind: schedule.Upcoming, Event: talk(tt.startIn)}
			st := Map(in)
			assert.Equal(t, KindUpcoming, st.Kind)
			assert.Equal(t, tt.want, st.Lead)
			assert.Equal(t, tt.startIn, st.Until)
		})
	}
}

func TestFormatterTime(t *testing.T) {
	at := time.Date(2025, 1, 20, 21, 5, 0, 0, time.UTC)

	f := NewFormatter(FormatOptions{Locale: "en-AU", Hour12: true, Location: time.UTC})
	assert.Equal(t, "9:05 pm", f.Time(at))

	f = NewFormatter(FormatOptions{Hour12: true, Caps: true, Location: time.UTC})
	assert.Equal(t, "9:05 PM", f.Time(at))

	f = NewFormatter(FormatOptions{Location: time.FixedZone("X", 3600)})
	assert.Equal(t, "22:05", f.Time(at))
}

func TestFormatterRelative(t *testing.T) {
	f := NewFormatter(FormatOptions{Locale: "en-AU"})
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "In 1 minute"},
		{61 * time.Second, "In 2 minutes"},
		{59 * time.Minute, "In 59 minutes"},
		{time.Hour, "In 1 hour"},
		{150 * time.Minute, "In 2 hours"},
		{24 * time.Hour, "In 1 day"},
		{73 * time.Hour, "In 3 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Relative(tt.in), tt.in.String())
	}
}

func TestFormatterLines(t *testing.T) {
	f := NewFormatter(FormatOptions{Locale: "en", Hour12: true, Location: time.UTC})

	in := baseInput()
	in.Resolved = schedule.Resolved{Kind: schedule.Upcoming, Event: talk(90 * time.Minute)}
	assert.Equal(t, Lines{Lead: "At 10:30 am", Title: "Keeping time", Presenter: "Ada, Charles"}, f.Lines(Map(in)))

	in.Relative = true
	assert.Equal(t, "In 1 hour", f.Lines(Map(in)).Lead)

	in.Resolved = schedule.Resolved{Kind: schedule.Current, Event: talk(0)}
	assert.Equal(t, "Starting soon", f.Lines(Map(in)).Lead)

	in.Resolved = schedule.Resolved{Kind: schedule.None}
	assert.Equal(t, Lines{Title: "Finished for the day!", Presenter: "Proceedings in Main have finished."}, f.Lines(Map(in)))

	in.RoomKnown = false
	in.Room = "Mian"
	assert.Equal(t, "Unknown room (r=Mian), options: Main, Side", f.Lines(Map(in)).Presenter)

	assert.Equal(t, Lines{Title: "No events scheduled today!"}, f.Lines(State{Kind: KindNoEventsToday}))
	assert.Equal(t, Lines{Title: "Doors open at 9"}, f.Lines(Clock(now, "Doors open at 9")))
	assert.NotEmpty(t, f.Lines(Loading(now)).Title)

	errLines := f.Lines(State{Kind: KindError, Message: "boom"})
	assert.Equal(t, "Well, this is embarrassing. :(", errLines.Title)
	assert.Equal(t, "boom", errLines.Presenter)
}

func TestTextSinkWritesOnlyOnChange(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatOptions{Location: time.UTC})
	sink := NewTextSink(&buf, f, 20)

	st := State{Kind: KindCurrent, At: now, Title: "A rather long talk title that wraps", Presenters: []string{"Ada"}}

	wrote, err := sink.Render(st)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Contains(t, buf.String(), "[09:00]")
	assert.Contains(t, buf.String(), "A rather long talk\ntitle that wraps\n")

	st.At = now.Add(time.Second)
	wrote, err = sink.Render(st)
	require.NoError(t, err)
	assert.False(t, wrote)

	st.At = now.Add(time.Minute)
	wrote, err = sink.Render(st)
	require.NoError(t, err)
	assert.True(t, wrote, "clock ticked over")
	assert.Contains(t, buf.String(), "[09:01]")

	wrote, err = sink.Render(State{Kind: KindFinishedForDay, At: now, Room: "Main"})
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Contains(t, buf.String(), "Finished for the day!")
}
