package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidObservation marks an ingest document that fails validation.
	ErrInvalidObservation = errors.New("invalid observation")

	// ErrResponseSizeExceeded is returned when a consolidated response would
	// carry more values than the configured ceiling.
	ErrResponseSizeExceeded = errors.New("response size exceeded")

	// ErrConcurrentUpdate signals that a series changed between read and
	// write. Callers retry the whole read-modify-write cycle.
	ErrConcurrentUpdate = errors.New("concurrent series update")

	// ErrSeriesNotFound is returned when no extrema exist for a series ID.
	ErrSeriesNotFound = errors.New("series not found")

	// ErrRecordNotFound is returned when a record ID is unknown or already deleted.
	ErrRecordNotFound = errors.New("observation not found")
)

// ResponseSizeError reports the ceiling that a response crossed.
type ResponseSizeError struct {
	Limit int
	Count int
}

func (e *ResponseSizeError) Error() string {
	return fmt.Sprintf("response size exceeded: %d values over limit of %d", e.Count, e.Limit)
}

func (e *ResponseSizeError) Unwrap() error {
	return ErrResponseSizeExceeded
}
