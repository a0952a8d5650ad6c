package dispatch

import (
	"context"
	"errors"

	"github.com/velmie/jobrelay"
	"github.com/velmie/jobrelay/job"
)

// DefaultLogCategory is used for messages that name no known job.
const DefaultLogCategory = "default"

// Dispatcher validates incoming job messages and runs them.
// Its registry is loaded before construction and never changes afterwards.
type Dispatcher struct {
	registry *job.Registry
	executor *Executor
	cfg      Config
}

// NewDispatcher constructs a Dispatcher over a loaded registry. The options also
// configure the Dispatcher's Executor, so both report to the same probe.
func NewDispatcher(registry *job.Registry, opts ...Option) *Dispatcher {
	if registry == nil {
		panic("dispatch: nil Registry")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Dispatcher{
		registry: registry,
		executor: NewExecutor(func(c *Config) { *c = cfg }),
		cfg:      cfg,
	}
}

// Dispatch runs the job named jobName against payload.
//
// Unknown jobs, payloads missing required keys and unresolvable callbacks are
// reported to the probe, logged and absorbed: Dispatch returns nil and the message
// should be acknowledged. A failed run is returned; the error wraps
// ErrExecutionFailed and the message may be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, jobName string, payload job.Payload) error {
	def, err := d.registry.Get(jobName)
	if err != nil {
		d.reject(jobName, payload, ReasonJobNotFound, DefaultLogCategory, err)

		return nil
	}

	if !d.registry.PayloadMatches(jobName, payload) {
		d.reject(jobName, payload, ReasonPayloadMismatch, def.LogSuffix, d.registry.Validate(jobName, payload))

		return nil
	}

	resolved, err := d.registry.Resolve(def)
	if err != nil {
		d.reject(jobName, payload, ReasonCallbacksPrefix+err.Error(), def.LogSuffix, err)

		return nil
	}

	out := d.executor.Run(ctx, resolved, payload)

	return out.Err
}

// Handle implements jobrelay.Handler. A payload that is not a JSON object is a
// poison message.
func (d *Dispatcher) Handle(ctx context.Context, msg jobrelay.Message) error {
	payload, err := job.DecodePayload(msg.Payload)
	if err != nil {
		d.reject(msg.JobName, nil, ReasonPayloadNotObject, DefaultLogCategory, err)

		return nil
	}

	return d.Dispatch(ctx, msg.JobName, payload)
}

func (d *Dispatcher) reject(jobName string, payload job.Payload, reason, category string, cause error) {
	d.cfg.Probe.Failed(jobName, payload, reason)
	d.cfg.Logger.Error("invalid job message",
		jobrelay.LogCategory, category, "job", jobName, "payload", payload, "reason", reason, "err", cause)
}

// Classify is a jobrelay.FailureClassifier for Dispatcher errors: execution
// failures are retried, anything else is dead-lettered.
func Classify(_ context.Context, _ jobrelay.Message, err error) jobrelay.FailureAction {
	if errors.Is(err, ErrExecutionFailed) {
		return jobrelay.FailureRetry
	}

	return jobrelay.FailureDead
}
