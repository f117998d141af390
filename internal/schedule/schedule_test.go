package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomsign/internal/model"
)

var t0 = time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func ev(title string, start, dur time.Duration) model.Event {
	return model.Event{Title: title, Start: at(start), Duration: dur}
}

func TestSelectDay(t *testing.T) {
	d1 := t0
	d2 := d1.Add(24 * time.Hour)
	d3 := d2.Add(24 * time.Hour)
	days := []model.ConferenceDay{
		{Index: 1, Start: d1, End: d2},
		{Index: 2, Start: d2, End: d3},
	}

	day, ok := SelectDay(days, d2)
	require.True(t, ok)
	assert.Equal(t, 2, day.Index, "start inclusive, end exclusive")

	day, ok = SelectDay(days, d1)
	require.True(t, ok)
	assert.Equal(t, 1, day.Index)

	_, ok = SelectDay(days, d3)
	assert.False(t, ok)
	_, ok = SelectDay(days, d1.Add(-time.Second))
	assert.False(t, ok)
	_, ok = SelectDay(nil, d1)
	assert.False(t, ok)
}

func TestSelectDayFirstMatchInFeedOrder(t *testing.T) {
	days := []model.ConferenceDay{
		{Index: 7, Start: t0, End: t0.Add(48 * time.Hour)},
		{Index: 1, Start: t0.Add(-24 * time.Hour), End: t0.Add(24 * time.Hour)},
	}
	day, ok := SelectDay(days, t0.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, 7, day.Index)
}

func TestParsePolicyKind(t *testing.T) {
	k, err := ParsePolicyKind("")
	require.NoError(t, err)
	assert.Equal(t, PolicyCapped, k)

	k, err = ParsePolicyKind(" Early-Cutoff ")
	require.NoError(t, err)
	assert.Equal(t, PolicyEarlyCutoff, k)

	_, err = ParsePolicyKind("lenient")
	assert.Error(t, err)
}

func TestEffectiveEnd(t *testing.T) {
	tests := []struct {
		name   string
		policy EndWindowPolicy
		event  model.Event
		want   time.Time
	}{
		{
			name:   "Raw keeps scheduled end",
			policy: EndWindowPolicy{Kind: PolicyRaw},
			event:  ev("x", 0, 50*time.Minute),
			want:   at(50 * time.Minute),
		},
		{
			name:   "Capped cuts a long slot",
			policy: EndWindowPolicy{Kind: PolicyCapped, MaxDuration: 600 * time.Second},
			event:  ev("x", 0, 3000*time.Second),
			want:   at(600 * time.Second),
		},
		{
			name:   "Capped keeps a short talk's own end",
			policy: EndWindowPolicy{Kind: PolicyCapped, MaxDuration: 600 * time.Second},
			event:  ev("x", 0, 5*time.Minute),
			want:   at(5 * time.Minute),
		},
		{
			name:   "Early cutoff falls back under the floor",
			policy: EndWindowPolicy{Kind: PolicyEarlyCutoff, Cutoff: 900 * time.Second, Floor: 600 * time.Second},
			event:  ev("x", 0, 1200*time.Second),
			want:   at(1200 * time.Second),
		},
		{
			name:   "Early cutoff stops 15 minutes before the end",
			policy: EndWindowPolicy{Kind: PolicyEarlyCutoff, Cutoff: 900 * time.Second, Floor: 600 * time.Second},
			event:  ev("x", 0, 3600*time.Second),
			want:   at(2700 * time.Second),
		},
		{
			name:   "Early cutoff exactly at the floor is kept",
			policy: EndWindowPolicy{Kind: PolicyEarlyCutoff, Cutoff: 900 * time.Second, Floor: 600 * time.Second},
			event:  ev("x", 0, 1500*time.Second),
			want:   at(600 * time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.EffectiveEnd(tt.event)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
			assert.False(t, got.After(tt.event.End()))
		})
	}
}

func TestResolveCappedPolicy(t *testing.T) {
	p := EndWindowPolicy{Kind: PolicyCapped, MaxDuration: 600 * time.Second}
	s := model.RoomSchedule{Events: []model.Event{ev("long slot", 0, 3000*time.Second)}}

	r := Resolve(s, at(300*time.Second), p)
	assert.Equal(t, Current, r.Kind)

	r = Resolve(s, at(700*time.Second), p)
	assert.Equal(t, None, r.Kind, "not current after the cap and nothing upcoming")
}

func TestResolveEarlyCutoffPolicy(t *testing.T) {
	p := EndWindowPolicy{Kind: PolicyEarlyCutoff, Cutoff: 900 * time.Second, Floor: 600 * time.Second}
	s := model.RoomSchedule{Events: []model.Event{
		ev("hour", 0, time.Hour),
		ev("next", time.Hour, 20*time.Minute),
	}}

	r := Resolve(s, at(44*time.Minute), p)
	assert.Equal(t, Current, r.Kind)
	assert.Equal(t, "hour", r.Event.Title)

	r = Resolve(s, at(45*time.Minute), p)
	assert.Equal(t, Upcoming, r.Kind)
	assert.Equal(t, "next", r.Event.Title)

	r = Resolve(s, at(79*time.Minute), p)
	assert.Equal(t, Current, r.Kind, "20 minute talk keeps its full window")
	assert.Equal(t, "next", r.Event.Title)

	r = Resolve(s, at(80*time.Minute), p)
	assert.Equal(t, None, r.Kind)
}

func TestResolveBoundaries(t *testing.T) {
	p := EndWindowPolicy{Kind: PolicyRaw}
	s := model.RoomSchedule{Events: []model.Event{
		ev("a", 0, 30*time.Minute),
		ev("b", time.Hour, 30*time.Minute),
	}}

	tests := []struct {
		at    time.Duration
		kind  ResolvedKind
		title string
	}{
		{-time.Minute, Upcoming, "a"},
		{0, Current, "a"},
		{30*time.Minute - time.Nanosecond, Current, "a"},
		{30 * time.Minute, Upcoming, "b"},
		{time.Hour, Current, "b"},
		{90 * time.Minute, None, ""},
	}
	for _, tt := range tests {
		r := Resolve(s, at(tt.at), p)
		assert.Equal(t, tt.kind, r.Kind, "at %s", tt.at)
		assert.Equal(t, tt.title, r.Event.Title, "at %s", tt.at)
	}
}

func TestResolveTieBreaks(t *testing.T) {
	p := EndWindowPolicy{Kind: PolicyRaw}

	t.Run("overlapping current events prefer iteration order", func(t *testing.T) {
		s := model.RoomSchedule{Events: []model.Event{
			ev("second listed first", 10*time.Minute, time.Hour),
			ev("earlier start", 0, time.Hour),
		}}
		r := Resolve(s, at(20*time.Minute), p)
		assert.Equal(t, Current, r.Kind)
		assert.Equal(t, "second listed first", r.Event.Title)
	})

	t.Run("equal upcoming starts prefer first seen", func(t *testing.T) {
		s := model.RoomSchedule{Events: []model.Event{
			ev("later", 2*time.Hour, time.Hour),
			ev("tie-1", time.Hour, time.Hour),
			ev("tie-2", time.Hour, time.Hour),
		}}
		r := Resolve(s, at(0), p)
		assert.Equal(t, Upcoming, r.Kind)
		assert.Equal(t, "tie-1", r.Event.Title)
	})

	t.Run("unsorted input still finds the earliest upcoming", func(t *testing.T) {
		s := model.RoomSchedule{Events: []model.Event{
			ev("c", 3*time.Hour, time.Hour),
			ev("a", time.Hour, time.Hour),
			ev("b", 2*time.Hour, time.Hour),
		}}
		r := Resolve(s, at(0), p)
		assert.Equal(t, "a", r.Event.Title)
	})

	t.Run("empty schedule", func(t *testing.T) {
		assert.Equal(t, Resolved{Kind: None}, Resolve(model.RoomSchedule{}, at(0), p))
	})
}

// Sweeps a non-overlapping schedule and checks that Current is returned
// exactly when some event window contains the instant, and that no event
// becomes current again after it stopped being current.
func TestResolveSweepProperties(t *testing.T) {
	s := model.RoomSchedule{Events: []model.Event{
		ev("a", 0, 20*time.Minute),
		ev("b", 30*time.Minute, time.Hour),
		ev("c", 90*time.Minute, 5*time.Minute),
		ev("d", 2*time.Hour, 45*time.Minute),
	}}

	for _, p := range []EndWindowPolicy{
		{Kind: PolicyRaw},
		{Kind: PolicyCapped, MaxDuration: 10 * time.Minute},
		{Kind: PolicyEarlyCutoff, Cutoff: 15 * time.Minute, Floor: 10 * time.Minute},
	} {
		t.Run(string(p.Kind), func(t *testing.T) {
			left := map[string]bool{}
			prev := map[string]bool{}
			for step := -10 * time.Minute; step <= 3*time.Hour; step += 30 * time.Second {
				now := at(step)
				r := Resolve(s, now, p)

				var want *model.Event
				for i, e := range s.Events {
					if !e.Start.After(now) && now.Before(p.EffectiveEnd(e)) {
						want = &s.Events[i]
						break
					}
				}
				if want != nil {
					require.Equal(t, Current, r.Kind, "at %s", step)
					require.Equal(t, want.Title, r.Event.Title)
				} else {
					require.NotEqual(t, Current, r.Kind, "at %s", step)
				}
				if r.Kind == Upcoming {
					require.True(t, r.Event.Start.After(now))
				}

				cur := map[string]bool{}
				if r.Kind == Current {
					cur[r.Event.Title] = true
					require.False(t, left[r.Event.Title], "%s current again at %s", r.Event.Title, step)
				}
				for title := range prev {
					if !cur[title] {
						left[title] = true
					}
				}
				prev = cur
			}
		})
	}
}
