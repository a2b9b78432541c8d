package core

import "errors"

// Failure kinds for model calls and run control. Callers wrap these with
// fmt.Errorf("...: %w", ...) so the kind survives through the pipeline while
// the message stays specific.
var (
	// ErrInputUnavailable means a video or report source could not be read.
	ErrInputUnavailable = errors.New("input unavailable")

	// ErrTransport means the model endpoint could not be reached or returned
	// a non-success status.
	ErrTransport = errors.New("model transport failure")

	// ErrMalformedResponse means the model replied but produced no usable
	// JSON payload even after extraction.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrRunInProgress is returned when an analysis run is requested while
	// another is still active.
	ErrRunInProgress = errors.New("analysis run already in progress")

	// ErrZoneNotFound is returned for zone detail requests naming a zone
	// absent from the current snapshot.
	ErrZoneNotFound = errors.New("zone not found")
)
