package schedule

import (
	"fmt"
	"strings"
	"time"

	"roomsign/internal/model"
)

// PolicyKind names an end-window policy.
type PolicyKind string

const (
	// PolicyRaw keeps an event current until its scheduled end.
	PolicyRaw PolicyKind = "raw"
	// PolicyCapped keeps an event current for at most MaxDuration.
	PolicyCapped PolicyKind = "capped"
	// PolicyEarlyCutoff drops an event Cutoff before its end, but never
	// earlier than Floor after its start.
	PolicyEarlyCutoff PolicyKind = "early-cutoff"
)

// Defaults for the policy constants.
const (
	DefaultMaxDuration = 600 * time.Second
	DefaultCutoff      = 900 * time.Second
	DefaultFloor       = 600 * time.Second
)

// EndWindowPolicy decides how long a started event is reported as current.
type EndWindowPolicy struct {
	Kind PolicyKind

	// MaxDuration is used by PolicyCapped.
	MaxDuration time.Duration

	// Cutoff and Floor are used by PolicyEarlyCutoff.
	Cutoff time.Duration
	Floor  time.Duration
}

// DefaultPolicy is the capped policy with a 10 minute cap.
func DefaultPolicy() EndWindowPolicy {
	return EndWindowPolicy{
		Kind:        PolicyCapped,
		MaxDuration: DefaultMaxDuration,
		Cutoff:      DefaultCutoff,
		Floor:       DefaultFloor,
	}
}

// ParsePolicyKind validates a configured policy name.
func ParsePolicyKind(s string) (PolicyKind, error) {
	switch k := PolicyKind(strings.ToLower(strings.TrimSpace(s))); k {
	case PolicyRaw, PolicyCapped, PolicyEarlyCutoff:
		return k, nil
	case "":
		return PolicyCapped, nil
	default:
		return "", fmt.Errorf("unknown end-window policy %q", s)
	}
}

// EffectiveEnd returns the instant at which e stops being current. It is
// never after e.End().
func (p EndWindowPolicy) EffectiveEnd(e model.Event) time.Time {
	end := e.End()

	switch p.Kind {
	case PolicyCapped:
		capped := e.Start.Add(p.MaxDuration)
		if capped.Before(end) {
			return capped
		}
		return end

	case PolicyEarlyCutoff:
		early := end.Add(-p.Cutoff)
		if early.Before(e.Start.Add(p.Floor)) {
			return end
		}
		return early

	default:
		return end
	}
}
