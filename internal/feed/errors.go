package feed

import "errors"

// Error classes for loading a schedule feed. Callers match them with
// errors.Is; the wrapping error carries the detail.
var (
	// ErrNetwork means the feed could not be retrieved (transport failure or
	// a non-2xx status).
	ErrNetwork = errors.New("feed: network error")

	// ErrParse means the body is not a document of the expected shape.
	ErrParse = errors.New("feed: parse error")

	// ErrInvalidEvent means a single record could not be normalized.
	ErrInvalidEvent = errors.New("feed: invalid event")

	// ErrInvalidDuration means a duration field is malformed.
	ErrInvalidDuration = errors.New("feed: invalid duration")
)
