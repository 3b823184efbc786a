package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrMalformedReading  = errors.New("malformed reading")
	ErrQueueFull         = errors.New("outbound queue full")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrUnknownRole       = errors.New("unknown role")
)

// ParseError describes why an inbound payload was rejected.
// Reason is a short, stable label suitable for metrics.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedReading, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedReading, e.Reason)
}

// Is reports ErrMalformedReading so callers can match any parse failure.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedReading
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
