package jobrelay

import "time"

// Metrics captures relay-level telemetry.
type Metrics interface {
	// ObserveBatchDuration records the time to process a batch.
	ObserveBatchDuration(duration time.Duration)
	// ObserveHandleDuration records the time the handler spent on one message.
	ObserveHandleDuration(duration time.Duration)
	// AddAcked increments the count of acknowledged messages.
	AddAcked(count int)
	// AddErrors increments the count of handler errors.
	AddErrors(count int)
	// AddRetries increments the count of messages scheduled for retry.
	AddRetries(count int)
	// AddDead increments the count of dead-lettered messages.
	AddDead(count int)
	// SetPending updates the current pending message count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveBatchDuration implements Metrics.
func (NopMetrics) ObserveBatchDuration(time.Duration) {}

// ObserveHandleDuration implements Metrics.
func (NopMetrics) ObserveHandleDuration(time.Duration) {}

// AddAcked implements Metrics.
func (NopMetrics) AddAcked(int) {}

// AddErrors implements Metrics.
func (NopMetrics) AddErrors(int) {}

// AddRetries implements Metrics.
func (NopMetrics) AddRetries(int) {}

// AddDead implements Metrics.
func (NopMetrics) AddDead(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
