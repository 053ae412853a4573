package telemetry

import "errors"

var (
	// ErrRawPayload is returned when a typed view is requested from a
	// payload that was not a JSON object.
	ErrRawPayload = errors.New("telemetry: payload is not a JSON object")

	// ErrInvalidUTF8 is returned when a payload or log line is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("telemetry: payload is not valid UTF-8")

	// ErrNotNumeric is returned when a field expected to hold a number does not.
	ErrNotNumeric = errors.New("telemetry: field is not numeric")
)
