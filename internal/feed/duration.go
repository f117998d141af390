package feed

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseSeconds parses a fixed "HH:MM:SS" duration (veyepar Episode.duration).
// Exactly three fields are required.
func ParseSeconds(raw string) (time.Duration, error) {
	fields := strings.Split(strings.TrimSpace(raw), ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("%w: %q: want HH:MM:SS", ErrInvalidDuration, raw)
	}

	var total int64
	for i, mul := range [3]int64{3600, 60, 1} {
		n, err := parseField(fields[i])
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDuration, raw, err)
		}
		total += n * mul
	}
	if total > math.MaxInt64/int64(time.Second) {
		return 0, fmt.Errorf("%w: %q: out of range", ErrInvalidDuration, raw)
	}
	return time.Duration(total) * time.Second, nil
}

// ParseMinutes parses a "[days:]hours:minutes" duration. Fields are
// right-aligned, so "45" is 45 minutes and "02:05" is 125 minutes.
func ParseMinutes(raw string) (time.Duration, error) {
	fields := strings.Split(strings.TrimSpace(raw), ":")
	if len(fields) > 3 {
		return 0, fmt.Errorf("%w: %q: want [days:]hours:minutes", ErrInvalidDuration, raw)
	}

	var total int64
	mul := [3]int64{1, 60, 1440}
	for i := 0; i < len(fields); i++ {
		n, err := parseField(fields[len(fields)-1-i])
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDuration, raw, err)
		}
		total += n * mul[i]
	}
	if total > math.MaxInt64/int64(time.Minute) {
		return 0, fmt.Errorf("%w: %q: out of range", ErrInvalidDuration, raw)
	}
	return time.Duration(total) * time.Minute, nil
}

// ParseDuration picks the duration format used by the given schema.
func ParseDuration(raw string, kind SchemaKind) (time.Duration, error) {
	switch kind {
	case SchemaFlatSeconds:
		return ParseSeconds(raw)
	case SchemaFlatMinutes, SchemaDayPartitioned:
		return ParseMinutes(raw)
	default:
		return 0, fmt.Errorf("%w: schema %q has no duration strings", ErrInvalidDuration, kind)
	}
}

// parseField accepts only plain decimal digits: no sign, no spaces inside.
func parseField(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty field")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("field %q is not a non-negative integer", s)
		}
	}
	return strconv.ParseInt(s, 10, 32)
}
