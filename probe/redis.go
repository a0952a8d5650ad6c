package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velmie/jobrelay"
	"github.com/velmie/jobrelay/job"
)

const (
	defaultRedisPrefix  = "jobrelay:probe"
	defaultRedisTimeout = 2 * time.Second
)

// Snapshot is the aggregated state of a Redis probe.
type Snapshot struct {
	OK     int64
	Failed int64
	Last   *Event
}

// RedisOption configures a Redis probe.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key prefix. Workers sharing a prefix share counters.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithRedisTimeout bounds each report round-trip.
func WithRedisTimeout(timeout time.Duration) RedisOption {
	return func(r *Redis) {
		r.timeout = timeout
	}
}

// WithRedisLogger sets the logger used for write failures.
func WithRedisLogger(logger jobrelay.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// Redis aggregates outcomes across workers and processes.
// Each report increments a counter and overwrites the last event in one MULTI
// transaction, so concurrent reporters do not lose updates.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	logger  jobrelay.Logger
}

// NewRedis constructs a Redis probe.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	if client == nil {
		panic("probe: nil redis client")
	}

	r := &Redis{client: client}
	for _, opt := range opts {
		opt(r)
	}
	if r.prefix == "" {
		r.prefix = defaultRedisPrefix
	}
	if r.timeout <= 0 {
		r.timeout = defaultRedisTimeout
	}
	if r.logger == nil {
		r.logger = jobrelay.NopLogger{}
	}

	return r
}

// OK implements Probe.
func (r *Redis) OK(jobName string, payload job.Payload) {
	r.record(r.key("ok"), Event{JobName: jobName, Payload: payload})
}

// Failed implements Probe.
func (r *Redis) Failed(jobName string, payload job.Payload, reason string) {
	r.record(r.key("failed"), Event{JobName: jobName, Payload: payload, Reason: reason})
}

// Snapshot reads the aggregated counters and last event.
func (r *Redis) Snapshot(ctx context.Context) (Snapshot, error) {
	values, err := r.client.MGet(ctx, r.key("ok"), r.key("failed"), r.key("last")).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("probe redis: read snapshot: %w", err)
	}

	var snap Snapshot
	if snap.OK, err = parseCounter(values[0]); err != nil {
		return Snapshot{}, err
	}
	if snap.Failed, err = parseCounter(values[1]); err != nil {
		return Snapshot{}, err
	}
	if raw, ok := values[2].(string); ok {
		var last Event
		if err := json.Unmarshal([]byte(raw), &last); err != nil {
			return Snapshot{}, fmt.Errorf("probe redis: decode last event: %w", err)
		}
		snap.Last = &last
	}

	return snap, nil
}

// Reset deletes the probe keys.
func (r *Redis) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key("ok"), r.key("failed"), r.key("last")).Err(); err != nil {
		return fmt.Errorf("probe redis: reset: %w", err)
	}

	return nil
}

func (r *Redis) record(counterKey string, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	encoded, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("probe redis encode failed", "job", event.JobName, "err", err)
		encoded = nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, counterKey)
		if encoded != nil {
			pipe.Set(ctx, r.key("last"), encoded, 0)
		}

		return nil
	})
	if err != nil {
		r.logger.Warn("probe redis write failed", "job", event.JobName, "err", err)
	}
}

func (r *Redis) key(name string) string {
	return r.prefix + ":" + name
}

func parseCounter(v any) (int64, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, errors.Join(fmt.Errorf("probe redis: invalid counter %q", value), err)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("probe redis: unexpected counter type %T", v)
	}
}
