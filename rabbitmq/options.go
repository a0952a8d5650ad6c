package rabbitmq

import (
	"time"

	"github.com/velmie/jobrelay"
)

const (
	defaultMaxAttempts = 5
	defaultPrefetch    = 1
)

// Config defines publisher and consumer behavior.
type Config struct {
	Topology          Topology
	MaxAttempts       int
	Prefetch          int
	ConsumerTag       string
	HandlerTimeout    time.Duration
	Generator         jobrelay.IDGenerator
	Clock             jobrelay.Clock
	Logger            jobrelay.Logger
	Metrics           jobrelay.Metrics
	FailureClassifier jobrelay.FailureClassifier
}

func (c Config) withDefaults() Config {
	c.Topology = c.Topology.withDefaults()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Prefetch <= 0 {
		c.Prefetch = defaultPrefetch
	}
	if c.Generator == nil {
		c.Generator = jobrelay.UUIDv7Generator{}
	}
	if c.Clock == nil {
		c.Clock = jobrelay.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = jobrelay.NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = jobrelay.NopMetrics{}
	}
	if c.FailureClassifier == nil {
		c.FailureClassifier = jobrelay.RetryAll
	}

	return c
}

// Option configures a Publisher or a Consumer.
type Option func(*Config)

// WithTopology sets exchange and queue names.
func WithTopology(topology Topology) Option {
	return func(c *Config) {
		c.Topology = topology
	}
}

// WithMaxAttempts sets the number of deliveries before a failing message is
// dead-lettered.
func WithMaxAttempts(attempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

// WithPrefetch sets the consumer prefetch count.
func WithPrefetch(count int) Option {
	return func(c *Config) {
		c.Prefetch = count
	}
}

// WithConsumerTag sets the consumer tag. Empty lets the broker choose.
func WithConsumerTag(tag string) Option {
	return func(c *Config) {
		c.ConsumerTag = tag
	}
}

// WithHandlerTimeout sets a per-message handler timeout. Zero means none.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HandlerTimeout = timeout
	}
}

// WithGenerator sets the message ID generator used by the publisher.
func WithGenerator(gen jobrelay.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}

// WithClock sets the time source.
func WithClock(clock jobrelay.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger jobrelay.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics jobrelay.Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithFailureClassifier sets the retry/dead-letter classifier for handler errors.
func WithFailureClassifier(classifier jobrelay.FailureClassifier) Option {
	return func(c *Config) {
		c.FailureClassifier = classifier
	}
}
