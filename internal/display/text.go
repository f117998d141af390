package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mitchellh/go-wordwrap"
)

// TextSink renders states as plain text, e.g. on a console kiosk. Like the
// browser sign, it only writes when something visible changed, the clock
// line included.
type TextSink struct {
	mu    sync.Mutex
	w     io.Writer
	f     *Formatter
	width uint

	last      Lines
	lastClock string
	wrote     bool
}

// NewTextSink creates a TextSink wrapping lines at width columns (0
// disables wrapping).
func NewTextSink(w io.Writer, f *Formatter, width uint) *TextSink {
	return &TextSink{w: w, f: f, width: width}
}

// Render writes st if its text differs from the previous render. It
// reports whether anything was written.
func (s *TextSink) Render(st State) (bool, error) {
	lines := s.f.Lines(st)
	clock := s.f.Time(st.At)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wrote && lines == s.last && clock == s.lastClock {
		return false, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", clock)
	for _, l := range []string{lines.Lead, lines.Title, lines.Presenter} {
		if l == "" {
			continue
		}
		if s.width > 0 {
			l = wordwrap.WrapString(l, s.width)
		}
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return false, err
	}
	s.last = lines
	s.lastClock = clock
	s.wrote = true
	return true, nil
}
