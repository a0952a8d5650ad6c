package dispatch

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/velmie/jobrelay"
	"github.com/velmie/jobrelay/job"
)

const (
	tracerName = "github.com/velmie/jobrelay/dispatch"
	spanName   = "jobrelay.job"
)

// Outcome is the result of one job run. Err is nil on success and otherwise wraps
// ErrExecutionFailed together with the failure that aborted the run.
type Outcome struct {
	Job string
	Err error
}

// OK reports whether the run succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Executor runs resolved jobs. It is safe for concurrent use when its Transport and
// Probe are.
type Executor struct {
	cfg    Config
	tracer trace.Tracer
}

// NewExecutor constructs an Executor with defaults and optional settings.
func NewExecutor(opts ...Option) *Executor {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Executor{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(tracerName),
	}
}

// Run executes rj and its callbacks against payload. Callback jobs get their own
// runs, spans and probe reports. payload is never modified.
func (e *Executor) Run(ctx context.Context, rj *job.Resolved, payload job.Payload) Outcome {
	ctx, span := e.tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("jobrelay.job.name", rj.Name),
			attribute.String("jobrelay.job.method", rj.RequestMethod()),
			attribute.Int("jobrelay.job.success_status", rj.SuccessStatus),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	out := e.run(ctx, rj, payload)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return out
}

func (e *Executor) run(ctx context.Context, rj *job.Resolved, payload job.Payload) Outcome {
	log := e.cfg.Logger
	log.Info("starting job request", jobrelay.LogCategory, rj.LogSuffix, "job", rj.Name, "payload", payload)

	if rj.Start != nil {
		if start := e.Run(ctx, rj.Start, payload); start.Err != nil {
			return e.fail(ctx, rj, payload, start.Err)
		}
	}

	if err := e.request(ctx, rj.Definition, payload); err != nil {
		reason := err.Error()
		e.cfg.Probe.Failed(rj.Name, payload, reason)
		log.Error("job request failed", jobrelay.LogCategory, rj.LogSuffix, "job", rj.Name, "payload", payload, "err", reason)

		return e.fail(ctx, rj, payload.With(job.ErrorMessageKey, reason), err)
	}

	if rj.Success != nil {
		if success := e.Run(ctx, rj.Success, payload); success.Err != nil {
			return e.fail(ctx, rj, payload, success.Err)
		}
	}

	e.cfg.Probe.OK(rj.Name, payload)
	log.Info("job request completed successfully", jobrelay.LogCategory, rj.LogSuffix, "job", rj.Name, "payload", payload)

	return Outcome{Job: rj.Name}
}

// fail runs the onFail callback, ignoring its outcome, and returns the failed
// Outcome for cause.
func (e *Executor) fail(ctx context.Context, rj *job.Resolved, payload job.Payload, cause error) Outcome {
	if rj.Fail != nil {
		if out := e.Run(ctx, rj.Fail, payload); out.Err != nil {
			e.cfg.Logger.Debug("on_fail callback failed",
				jobrelay.LogCategory, rj.LogSuffix, "job", rj.Name, "callback", rj.Fail.Name, "err", out.Err)
		}
	}

	return Outcome{Job: rj.Name, Err: executionFailed(cause)}
}

func (e *Executor) request(ctx context.Context, def job.Definition, payload job.Payload) error {
	req, err := newRequest(ctx, def, payload)
	if err != nil {
		return err
	}

	return send(e.cfg.Transport, req, def.SuccessStatus)
}
