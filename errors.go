package jobrelay

import "errors"

var (
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("jobrelay batch size must be positive")
	// ErrNoMessages signals that no messages are available for processing.
	ErrNoMessages = errors.New("jobrelay queue has no pending messages")
	// ErrNilBatch indicates that a consumer returned a nil batch.
	ErrNilBatch = errors.New("jobrelay batch is nil")
	// ErrEmptyBatch indicates that a consumer returned a batch with no messages.
	ErrEmptyBatch = errors.New("jobrelay batch has no messages")
	// ErrJobNameRequired is returned when Envelope.JobName is empty.
	ErrJobNameRequired = errors.New("jobrelay job name is required")
	// ErrInvalidPayload is returned when Envelope.Payload is not a JSON object.
	ErrInvalidPayload = errors.New("jobrelay payload must be a JSON object")
	// ErrWorkerPanic indicates a relay worker panic.
	ErrWorkerPanic = errors.New("jobrelay worker panic")
)
