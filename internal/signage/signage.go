// Package signage holds the process-wide state of one sign: configuration,
// the loaded schedule and the pipeline from an instant to a display.State.
package signage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"roomsign/internal/config"
	"roomsign/internal/display"
	"roomsign/internal/feed"
	appLog "roomsign/internal/log"
	"roomsign/internal/model"
	"roomsign/internal/schedule"
)

// Options are the per-evaluation knobs. The configured values are returned
// by Signage.Defaults; HTTP requests may override them.
type Options struct {
	// Room is a room name or slug.
	Room string
	// Offset is added to the wall clock before evaluation.
	Offset time.Duration

	ClockOnly bool
	Message   string

	// Relative announces upcoming events as "In N minutes".
	Relative bool
}

// Signage is built once in main and shared by the tick, the HTTP server and
// the capture job.
type Signage struct {
	defaults     Options
	policy       schedule.EndWindowPolicy
	startingSoon time.Duration
	formatter    *display.Formatter
	loc          *time.Location

	fetcher *feed.Fetcher
	source  feed.Source
	kind    feed.SchemaKind
	timeout time.Duration
	horizon int

	mu      sync.RWMutex
	loaded  bool
	sched   *feed.Schedule
	loadErr error
}

// New builds a Signage from cfg. now anchors load_time based time-warp.
func New(cfg *config.Config, now time.Time) (*Signage, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	kind, err := feed.ParseSchemaKind(cfg.Feed.Schema)
	if err != nil {
		return nil, err
	}
	policy, err := cfg.EndWindowPolicy()
	if err != nil {
		return nil, err
	}
	offset, err := cfg.Offset(now)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	hour12 := cfg.Display.Hour12 == nil || *cfg.Display.Hour12
	timeout := time.Duration(cfg.Feed.TimeoutSeconds) * time.Second

	s := &Signage{
		defaults: Options{
			Room:      cfg.Room,
			Offset:    offset,
			ClockOnly: cfg.ClockOnly,
			Message:   cfg.Message,
			Relative:  cfg.Display.NextEventRemaining,
		},
		policy:       policy,
		startingSoon: time.Duration(cfg.Display.StartingSoonSecs) * time.Second,
		formatter: display.NewFormatter(display.FormatOptions{
			Locale:   cfg.Display.Locale,
			Hour12:   hour12,
			Caps:     cfg.Display.TimeCaps,
			Location: loc,
		}),
		loc: loc,
		fetcher: feed.NewFetcher(feed.FetcherOptions{
			CacheDir:      cfg.Feed.CacheDir,
			Timeout:       timeout,
			StaleFallback: cfg.Feed.StaleFallback,
		}),
		source:  feed.Source{ID: cfg.Feed.Show, URL: cfg.FeedURL()},
		kind:    kind,
		timeout: timeout,
		horizon: cfg.Feed.HorizonDays,
	}
	if offset != 0 {
		appLog.Info("time-warp active", "offset", offset.String())
	}
	return s, nil
}

// Defaults returns the configured options.
func (s *Signage) Defaults() Options {
	return s.defaults
}

// Formatter returns the text formatter for this sign.
func (s *Signage) Formatter() *display.Formatter {
	return s.formatter
}

// Location returns the display time zone.
func (s *Signage) Location() *time.Location {
	return s.loc
}

// Load fetches and decodes the feed once and publishes the result. The
// fetch is bounded by the configured feed timeout. A failed load is
// terminal: the error is published and shown as the error state.
func (s *Signage) Load(ctx context.Context) error {
	if s.defaults.ClockOnly {
		s.Publish(nil, nil)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	at := time.Now().Add(s.defaults.Offset)
	opts := feed.DecodeOptions{
		Location:    s.loc,
		WindowStart: at.AddDate(0, 0, -1),
		WindowEnd:   at.AddDate(0, 0, s.horizon),
	}

	sched, err := feed.Load(ctx, s.fetcher, s.source, s.kind, opts)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, feed.ErrNetwork) {
			err = fmt.Errorf("%w: %v", feed.ErrNetwork, ctx.Err())
		}
		appLog.Error("schedule load failed", err, "id", s.source.ID)
		s.Publish(nil, err)
		return err
	}

	appLog.Info("schedule loaded",
		"id", s.source.ID,
		"schema", string(sched.Kind),
		"rooms", len(sched.KnownRooms()),
		"days", len(sched.Days),
		"skipped", sched.Skipped,
	)
	s.Publish(sched, nil)
	return nil
}

// Publish installs a loaded schedule or a terminal load error.
func (s *Signage) Publish(sched *feed.Schedule, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.sched = sched
	s.loadErr = err
}

// Schedule returns the published schedule. ok is false while loading.
func (s *Signage) Schedule() (sched *feed.Schedule, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched, s.loaded, s.loadErr
}

// Tick evaluates the configured options at now.
func (s *Signage) Tick(now time.Time) display.State {
	return s.State(s.defaults, now)
}

// State evaluates opts at now (wall clock, before Offset is applied).
func (s *Signage) State(opts Options, now time.Time) display.State {
	at := now.Add(opts.Offset)
	if opts.ClockOnly {
		return display.Clock(at, opts.Message)
	}

	sched, ok, loadErr := s.Schedule()
	if !ok {
		return display.Loading(at)
	}

	in := display.Input{
		Err:          loadErr,
		Room:         opts.Room,
		At:           at,
		StartingSoon: s.startingSoon,
		Relative:     opts.Relative,
	}
	if loadErr != nil {
		return display.Map(in)
	}
	if sched == nil {
		// Clock-only configs never fetch a feed; a per-request override
		// has nothing to resolve against.
		return display.Clock(at, opts.Message)
	}

	name, known := sched.LookupRoom(opts.Room)
	in.RoomKnown = known
	if !known {
		in.ValidRooms = sched.RoomOptions()
		return display.Map(in)
	}
	in.Room = name

	var rs model.RoomSchedule
	if sched.Partitioned() {
		day, found := schedule.SelectDay(sched.Days, at)
		in.DayFound = found
		rs = day.Rooms[name]
	} else {
		in.DayFound = true
		rs = sched.Rooms[name]
	}
	if in.DayFound {
		in.Resolved = schedule.Resolve(rs, at, s.policy)
	}
	return display.Map(in)
}
