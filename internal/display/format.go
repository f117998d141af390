package display

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Fixed texts. They double as message catalog keys.
const (
	msgFinishedTitle = "Finished for the day!"
	msgFinishedBody  = "Proceedings in %s have finished."
	msgNoEvents      = "No events scheduled today!"
	msgStartingSoon  = "Starting soon"
	msgAt            = "At %s"
	msgErrorTitle    = "Well, this is embarrassing. :("
	msgUnknownRoom   = "Unknown room (r=%s), options: %s"
	msgLoading       = "Loading schedule…"
	msgInMinutes     = "In %d minutes"
	msgInHours       = "In %d hours"
	msgInDays        = "In %d days"
)

func init() {
	for _, tag := range []language.Tag{language.English, language.Und} {
		must(message.Set(tag, msgInMinutes, plural.Selectf(1, "%d",
			"=1", "In %d minute",
			"other", "In %d minutes")))
		must(message.Set(tag, msgInHours, plural.Selectf(1, "%d",
			"=1", "In %d hour",
			"other", "In %d hours")))
		must(message.Set(tag, msgInDays, plural.Selectf(1, "%d",
			"=1", "In %d day",
			"other", "In %d days")))
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Lines is the three-line text layout of the sign.
type Lines struct {
	Lead      string `json:"lead"`
	Title     string `json:"title"`
	Presenter string `json:"presenter"`
}

// FormatOptions configures a Formatter.
type FormatOptions struct {
	// Locale is a BCP 47 tag such as "en-AU". Empty means English.
	Locale string
	// Hour12 selects "9:30 am" over "09:30".
	Hour12 bool
	// Caps upper-cases formatted times ("9:30 AM").
	Caps bool
	// Location is the display zone. Nil means time.Local.
	Location *time.Location
}

// Formatter turns States into text.
type Formatter struct {
	printer *message.Printer
	opts    FormatOptions
}

// NewFormatter builds a Formatter. An unparseable locale falls back to
// English.
func NewFormatter(opts FormatOptions) *Formatter {
	tag := language.English
	if opts.Locale != "" {
		if t, err := language.Parse(opts.Locale); err == nil {
			tag = t
		}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Formatter{printer: message.NewPrinter(tag), opts: opts}
}

// Time formats an instant as a wall-clock time in the display zone.
func (f *Formatter) Time(t time.Time) string {
	layout := "15:04"
	if f.opts.Hour12 {
		layout = "3:04 pm"
	}
	s := t.In(f.opts.Location).Format(layout)
	if f.opts.Caps {
		s = strings.ToUpper(s)
	}
	return s
}

// Relative formats a positive duration as "In N minutes/hours/days".
// Minutes round up; hours and days round down.
func (f *Formatter) Relative(d time.Duration) string {
	mins := int(math.Ceil(d.Minutes()))
	hours := int(d / time.Hour)
	days := int(d / (24 * time.Hour))

	switch {
	case hours == 0:
		return f.printer.Sprintf(msgInMinutes, mins)
	case days == 0:
		return f.printer.Sprintf(msgInHours, hours)
	default:
		return f.printer.Sprintf(msgInDays, days)
	}
}

// Lines renders st.
func (f *Formatter) Lines(st State) Lines {
	p := f.printer

	switch st.Kind {
	case KindLoading:
		return Lines{Title: p.Sprintf(msgLoading)}

	case KindClock:
		return Lines{Title: st.Message}

	case KindError:
		return Lines{Title: p.Sprintf(msgErrorTitle), Presenter: st.Message}

	case KindUnknownRoom:
		return Lines{
			Title:     p.Sprintf(msgErrorTitle),
			Presenter: p.Sprintf(msgUnknownRoom, st.Room, strings.Join(st.ValidRooms, ", ")),
		}

	case KindNoEventsToday:
		return Lines{Title: p.Sprintf(msgNoEvents)}

	case KindFinishedForDay:
		return Lines{
			Title:     p.Sprintf(msgFinishedTitle),
			Presenter: p.Sprintf(msgFinishedBody, st.Room),
		}

	case KindCurrent:
		return Lines{
			Lead:      p.Sprintf(msgStartingSoon),
			Title:     st.Title,
			Presenter: strings.Join(st.Presenters, ", "),
		}

	case KindUpcoming:
		l := Lines{Title: st.Title, Presenter: strings.Join(st.Presenters, ", ")}
		switch st.Lead {
		case LeadStartingSoon:
			l.Lead = p.Sprintf(msgStartingSoon)
		case LeadRelative:
			l.Lead = f.Relative(st.Until)
		default:
			if st.StartsAt != nil {
				l.Lead = p.Sprintf(msgAt, f.Time(*st.StartsAt))
			}
		}
		return l
	}

	return Lines{}
}
