package jobrelay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Relay polls a Consumer and hands each fetched message to a Handler.
// Handler errors go through the FailureClassifier: retryable failures are
// recorded with Batch.Fail, the rest are dead-lettered.
type Relay struct {
	consumer Consumer
	handler  Handler
	cfg      RelayConfig

	pendingMu sync.Mutex
	pendingAt time.Time
}

type settlement struct {
	acked []ID
	retry []Failure
	dead  []Failure
}

// NewRelay constructs a Relay with defaults and optional settings.
func NewRelay(consumer Consumer, handler Handler, opts ...RelayOption) *Relay {
	if consumer == nil {
		panic("jobrelay: nil Consumer")
	}
	if handler == nil {
		panic("jobrelay: nil Handler")
	}

	var cfg RelayConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Relay{
		consumer: consumer,
		handler:  handler,
		cfg:      cfg.withDefaults(),
	}
}

// Run polls with the configured number of workers until ctx is canceled or a
// worker fails. The first worker error cancels the others and is returned.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, r.cfg.Workers)
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.cfg.Logger.Error("jobrelay worker panic", "worker", worker, "panic", rec)
					errCh <- fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
					cancel()
				}
			}()

			if err := r.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.cfg.Logger.Error("jobrelay worker stopped", "worker", worker, "err", err)
				errCh <- err
				cancel()
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// ProcessOnce fetches and processes a single batch.
// It reports whether a batch was processed.
func (r *Relay) ProcessOnce(ctx context.Context) (bool, error) {
	batch, err := r.fetch(ctx)
	if errors.Is(err, ErrNoMessages) {
		r.maybeRecordPending(ctx)

		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := r.processBatch(ctx, batch); err != nil {
		return false, err
	}

	return true, nil
}

func (r *Relay) poll(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		processed, err := r.ProcessOnce(ctx)
		if err != nil {
			return err
		}
		if processed {
			continue
		}
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (r *Relay) fetch(ctx context.Context) (Batch, error) {
	opts := FetchOptions{BatchSize: r.cfg.BatchSize}
	if r.cfg.MaxAge > 0 {
		opts.MinCreatedAt = r.cfg.Clock.Now().Add(-r.cfg.MaxAge)
	}

	return r.consumer.Fetch(ctx, opts)
}

func (r *Relay) processBatch(ctx context.Context, batch Batch) error {
	start := time.Now()
	defer func() {
		r.cfg.Metrics.ObserveBatchDuration(time.Since(start))
	}()

	if batch == nil {
		return ErrNilBatch
	}

	messages := batch.Messages()
	if len(messages) == 0 {
		return errors.Join(ErrEmptyBatch, batch.Rollback())
	}

	result, err := r.handleAll(ctx, messages)
	if err != nil {
		return r.rollbackWith(batch, err)
	}

	return r.settle(ctx, batch, result)
}

func (r *Relay) handleAll(ctx context.Context, messages []Message) (settlement, error) {
	result := settlement{acked: make([]ID, 0, len(messages))}

	for i := range messages {
		msg := messages[i]
		err := r.handle(ctx, msg)
		if err == nil {
			result.acked = append(result.acked, msg.ID)

			continue
		}
		// Shutdown mid-batch: leave every message of the batch for redelivery.
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if r.cfg.ErrorHandler != nil {
			r.cfg.ErrorHandler(ctx, msg, err)
		}
		action := r.cfg.FailureClassifier(ctx, msg, err)
		r.cfg.Logger.Warn("jobrelay message failed",
			"id", msg.ID, "job", msg.JobName, "attempts", msg.Attempts, "action", action, "err", err)

		if action == FailureDead {
			result.dead = append(result.dead, Failure{ID: msg.ID, Err: err})

			continue
		}
		result.retry = append(result.retry, Failure{ID: msg.ID, Err: err})
	}

	return result, nil
}

func (r *Relay) handle(ctx context.Context, msg Message) error {
	handleCtx := ctx
	cancel := func() {}
	if r.cfg.HandlerTimeout > 0 {
		handleCtx, cancel = context.WithTimeout(ctx, r.cfg.HandlerTimeout)
	}
	defer cancel()

	start := time.Now()
	err := r.handler.Handle(handleCtx, msg)
	r.cfg.Metrics.ObserveHandleDuration(time.Since(start))

	return err
}

func (r *Relay) settle(ctx context.Context, batch Batch, result settlement) error {
	if len(result.acked) > 0 {
		if err := batch.Ack(ctx, result.acked); err != nil {
			return r.rollbackWith(batch, fmt.Errorf("jobrelay ack failed: %w", err))
		}
	}
	if len(result.retry) > 0 {
		if err := batch.Fail(ctx, result.retry); err != nil {
			return r.rollbackWith(batch, fmt.Errorf("jobrelay fail update failed: %w", err))
		}
	}
	if len(result.dead) > 0 {
		if err := r.deadLetter(ctx, batch, result.dead); err != nil {
			return err
		}
	}

	if err := batch.Commit(); err != nil {
		return r.rollbackWith(batch, fmt.Errorf("jobrelay commit failed: %w", err))
	}

	r.cfg.Metrics.AddAcked(len(result.acked))
	r.cfg.Metrics.AddErrors(len(result.retry) + len(result.dead))
	r.cfg.Metrics.AddRetries(len(result.retry))
	r.cfg.Metrics.AddDead(len(result.dead))

	return nil
}

func (r *Relay) deadLetter(ctx context.Context, batch Batch, dead []Failure) error {
	if deadBatch, ok := batch.(DeadBatch); ok {
		if err := deadBatch.Dead(ctx, dead); err != nil {
			return r.rollbackWith(batch, fmt.Errorf("jobrelay dead-letter update failed: %w", err))
		}

		return nil
	}

	r.cfg.Logger.Warn("jobrelay batch does not support dead-lettering; falling back to retry", "count", len(dead))
	if err := batch.Fail(ctx, dead); err != nil {
		return r.rollbackWith(batch, fmt.Errorf("jobrelay dead-letter fallback failed: %w", err))
	}

	return nil
}

func (r *Relay) rollbackWith(batch Batch, err error) error {
	rollbackErr := batch.Rollback()
	if rollbackErr == nil {
		return err
	}

	return errors.Join(err, fmt.Errorf("jobrelay rollback failed: %w", rollbackErr))
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Relay) maybeRecordPending(ctx context.Context) {
	counter, ok := r.consumer.(PendingCounter)
	if !ok || r.cfg.PendingInterval <= 0 || ctx.Err() != nil {
		return
	}

	now := r.cfg.Clock.Now()
	r.pendingMu.Lock()
	if !r.pendingAt.IsZero() && now.Before(r.pendingAt.Add(r.cfg.PendingInterval)) {
		r.pendingMu.Unlock()

		return
	}
	r.pendingAt = now
	r.pendingMu.Unlock()

	count, err := counter.PendingCount(ctx)
	if err != nil {
		r.cfg.Logger.Warn("jobrelay pending count failed", "err", err)

		return
	}

	r.cfg.Metrics.SetPending(count)
}
