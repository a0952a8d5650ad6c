package dispatch

import (
	"errors"
	"fmt"
)

// ErrExecutionFailed wraps every failure returned from a job run.
var ErrExecutionFailed = errors.New("job request failed")

// Reasons reported to the probe for poison messages.
const (
	ReasonJobNotFound      = "Job config not found"
	ReasonPayloadMismatch  = "Payload does not match job config"
	ReasonCallbacksPrefix  = "Failed to load job callbacks: "
	ReasonPayloadNotObject = "Payload is not a JSON object"
)

// StatusError is the request failure for a response whose status code differs from
// the job's success status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Unexpected status code: %d", e.Code)
}

func executionFailed(cause error) error {
	return fmt.Errorf("%w: %w", ErrExecutionFailed, cause)
}
