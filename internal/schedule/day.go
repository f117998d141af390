package schedule

import (
	"time"

	"roomsign/internal/model"
)

// SelectDay returns the first day, in feed order, whose [Start, End) window
// contains at. Feeds are not guaranteed to be sorted or non-overlapping, so
// "first match" rather than "earliest day" is the rule.
func SelectDay(days []model.ConferenceDay, at time.Time) (model.ConferenceDay, bool) {
	for _, d := range days {
		if d.Contains(at) {
			return d, true
		}
	}
	return model.ConferenceDay{}, false
}
