package web

import (
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"roomsign/internal/config"
	"roomsign/internal/display"
	"roomsign/internal/feed"
	appLog "roomsign/internal/log"
	"roomsign/internal/model"
	"roomsign/internal/signage"
)

// Server exposes the sign over HTTP: the kiosk page, the display state API
// and the last captured preview.
type Server struct {
	cfg *config.Config
	sig *signage.Signage
	mux *http.ServeMux

	// limiter throttles /api/*; nil when disabled.
	limiter *rate.Limiter

	// now is the wall clock; tests replace it.
	now func() time.Time
}

// embeddedStatic contains the kiosk page.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, sig *signage.Signage) *Server {
	s := &Server{
		cfg: cfg,
		sig: sig,
		mux: http.NewServeMux(),
		now: time.Now,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.limiter != nil {
		h = s.rateLimitMiddleware(h)
	}
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return requestIDMiddleware(h)
}

// requestIDMiddleware tags every request with an X-Request-Id, keeping one
// supplied by a proxy.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		appLog.Debug("http request", "id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware answers 429 once /api/* exceeds the configured rate.
// The kiosk page and /health are not limited.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="roomsign", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/display", s.handleDisplay)
	s.mux.HandleFunc("/api/rooms", s.handleRooms)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/preview.png", s.handlePreview)

	// Everything else is the embedded kiosk page.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// displayResponse is the JSON response shape for /api/display.
type displayResponse struct {
	State display.State `json:"state"`
	Lines display.Lines `json:"lines"`
	Clock string        `json:"clock"`

	// OffsetMs is the applied time-warp in milliseconds, so that the page
	// can keep a fixed tw across polls.
	OffsetMs int64 `json:"offset_ms"`
}

// handleDisplay evaluates the sign for one request.
//
// GET /api/display?r=main&tw=-3600000&c=1&m=hello&rel=1
//   - r:   room name or slug (default: config room)
//   - tw:  time-warp offset in milliseconds
//   - lt:  evaluate at this instant (RFC 3339 or Unix milliseconds); wins over tw
//   - c:   clock-only mode, m: its message
//   - rel: announce upcoming events relative to now
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	opts, err := s.optionsFromQuery(r, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := s.sig.State(opts, now)
	f := s.sig.Formatter()
	writeJSON(w, http.StatusOK, displayResponse{
		State:    st,
		Lines:    f.Lines(st),
		Clock:    f.Time(st.At),
		OffsetMs: opts.Offset.Milliseconds(),
	})
}

func (s *Server) optionsFromQuery(r *http.Request, now time.Time) (signage.Options, error) {
	opts := s.sig.Defaults()
	q := r.URL.Query()

	if v := strings.TrimSpace(q.Get("r")); v != "" {
		opts.Room = v
	}
	if v := q.Get("tw"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, errors.New("tw must be an integer number of milliseconds")
		}
		opts.Offset = time.Duration(ms) * time.Millisecond
	}
	if v := q.Get("lt"); v != "" {
		lt, err := parseInstant(v)
		if err != nil {
			return opts, errors.New("lt must be RFC 3339 or Unix milliseconds")
		}
		opts.Offset = lt.Sub(now)
	}
	if v := q.Get("c"); v != "" {
		opts.ClockOnly = parseBool(v)
	}
	if q.Has("m") {
		opts.Message = q.Get("m")
	}
	if v := q.Get("rel"); v != "" {
		opts.Relative = parseBool(v)
	}
	return opts, nil
}

// roomDTO is a JSON-friendly view of feed.Room.
type roomDTO struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// roomsResponse is the JSON response shape for /api/rooms.
type roomsResponse struct {
	Rooms   []roomDTO `json:"rooms"`
	Options []string  `json:"options"`
	Skipped int       `json:"skipped"`
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	sched, ok := s.loadedSchedule(w)
	if !ok {
		return
	}

	rooms := sched.KnownRooms()
	dtos := make([]roomDTO, 0, len(rooms))
	for _, rm := range rooms {
		dtos = append(dtos, roomDTO{Name: rm.Name, Slug: rm.Slug})
	}
	writeJSON(w, http.StatusOK, roomsResponse{
		Rooms:   dtos,
		Options: sched.RoomOptions(),
		Skipped: sched.Skipped,
	})
}

// eventDTO is a JSON-friendly view of model.Event.
type eventDTO struct {
	Title      string    `json:"title"`
	Presenters []string  `json:"presenters,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`

	// DurationSecs is the scheduled duration, before any end-window policy.
	DurationSecs int64 `json:"duration_secs"`
}

// dayDTO is one conference day, or the whole feed for flat schemas.
type dayDTO struct {
	Index  int        `json:"index,omitempty"`
	Date   string     `json:"date,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Events []eventDTO `json:"events"`
}

// scheduleResponse is the JSON response shape for /api/schedule.
type scheduleResponse struct {
	Room   string   `json:"room"`
	Schema string   `json:"schema"`
	Days   []dayDTO `json:"days"`
}

// handleSchedule lists the events of one room.
//
// GET /api/schedule?r=main
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.loadedSchedule(w)
	if !ok {
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("r"))
	if id == "" {
		id = s.sig.Defaults().Room
	}
	name, known := sched.LookupRoom(id)
	if !known {
		writeJSON(w, http.StatusNotFound, struct {
			Error   string   `json:"error"`
			Options []string `json:"options"`
		}{Error: "unknown room " + strconv.Quote(id), Options: sched.RoomOptions()})
		return
	}

	resp := scheduleResponse{Room: name, Schema: string(sched.Kind), Days: []dayDTO{}}
	if sched.Partitioned() {
		for _, d := range sched.Days {
			start, end := d.Start, d.End
			resp.Days = append(resp.Days, dayDTO{
				Index:  d.Index,
				Date:   d.Date,
				Start:  &start,
				End:    &end,
				Events: eventDTOs(d.Rooms[name].Events),
			})
		}
	} else {
		resp.Days = append(resp.Days, dayDTO{Events: eventDTOs(sched.Rooms[name].Events)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func eventDTOs(events []model.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, eventDTO{
			Title:        e.Title,
			Presenters:   e.Presenters,
			Start:        e.Start,
			End:          e.End(),
			DurationSecs: int64(e.Duration / time.Second),
		})
	}
	return out
}

// loadedSchedule writes 503 while the feed is loading and 502 after a
// failed load.
func (s *Server) loadedSchedule(w http.ResponseWriter) (*feed.Schedule, bool) {
	sched, loaded, err := s.sig.Schedule()
	switch {
	case !loaded:
		writeError(w, http.StatusServiceUnavailable, "schedule is loading")
		return nil, false
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return nil, false
	case sched == nil:
		writeError(w, http.StatusNotFound, "no schedule in clock-only mode")
		return nil, false
	}
	return sched, true
}

// staticFileServer returns an http.Handler that serves the embedded kiosk
// page from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unknown /api/* paths must 404 rather than return HTML.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// handlePreview serves the last captured PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Capture.Enabled {
		http.NotFound(w, r)
		return
	}
	// ServeFile maps missing files to 404.
	http.ServeFile(w, r, s.cfg.Capture.OutputPath)
}

func parseInstant(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, v)
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		// Unrecognised values such as "yes" count as set.
		return v != ""
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
