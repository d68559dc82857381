package telemetry

import "errors"

// Sentinel errors for telemetry ingestion.
// Use errors.Is() to check for these conditions.
var (
	// ErrMalformedPayload indicates the telemetry JSON could not be decoded.
	ErrMalformedPayload = errors.New("malformed telemetry payload")

	// ErrEmptyPayload indicates a decodable payload carrying no metrics.
	ErrEmptyPayload = errors.New("telemetry payload has no metrics")

	// ErrReadingNotFound indicates no reading matched the query.
	ErrReadingNotFound = errors.New("reading not found")
)
