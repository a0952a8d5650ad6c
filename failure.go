package jobrelay

import "context"

// FailureAction defines how a failed message should be handled.
type FailureAction int

const (
	// FailureRetry keeps the message for another delivery attempt.
	FailureRetry FailureAction = iota
	// FailureDead dead-letters the message immediately.
	FailureDead
)

func (a FailureAction) String() string {
	switch a {
	case FailureRetry:
		return "retry"
	case FailureDead:
		return "dead"
	default:
		return "unknown"
	}
}

// FailureClassifier decides whether a failure is retryable.
type FailureClassifier func(ctx context.Context, msg Message, err error) FailureAction

// FailureHandler is called when a message handler returns an error.
type FailureHandler func(ctx context.Context, msg Message, err error)

// RetryAll is the default classifier: every failure is retried.
func RetryAll(context.Context, Message, error) FailureAction {
	return FailureRetry
}
