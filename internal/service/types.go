package service

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput is the parent of every validation error; handlers map it to 400.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrInvalidTimestamp   = fmt.Errorf("%w: start time must be an ISO-8601 instant with offset", ErrInvalidInput)
	ErrInvalidTemperature = fmt.Errorf("%w: temperature must be a decimal number", ErrInvalidInput)
	ErrInvalidTimer       = fmt.Errorf("%w: timer minutes must be zero or positive", ErrInvalidInput)
	ErrInvalidColor       = fmt.Errorf("%w: led components must be within 0..255", ErrInvalidInput)
	ErrInvalidTimeRange   = fmt.Errorf("%w: from must be <= to", ErrInvalidInput)
	ErrUnknownEventType   = fmt.Errorf("%w: unknown event type", ErrInvalidInput)
	ErrInvalidLimit       = fmt.Errorf("%w: limit must be within 0..%d", ErrInvalidInput, MaxLogLimit)
)

// MaxLogLimit caps how many history entries one query may ask for.
const MaxLogLimit = 1000

// LogFilter selects history entries by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "START", "SET_TEMP", "ACTION_FIRED", ...
	// Limit keeps only the newest Limit matches; zero keeps all.
	Limit int
}
