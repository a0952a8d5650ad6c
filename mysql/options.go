package mysql

import "github.com/velmie/jobrelay"

const (
	defaultTable       = "job_messages"
	defaultMaxAttempts = 5
)

// Config defines MySQL store behavior.
type Config struct {
	Table       string
	MaxAttempts int
	Clock       jobrelay.Clock
	Generator   jobrelay.IDGenerator
	// ValidatePayload rejects envelopes whose payload is not a JSON object. Enabled
	// unless turned off with WithValidatePayload(false).
	ValidatePayload    bool
	validatePayloadSet bool
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Clock == nil {
		c.Clock = jobrelay.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = jobrelay.UUIDv7Generator{}
	}
	if !c.validatePayloadSet {
		c.ValidatePayload = true
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the job message table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithMaxAttempts sets the retry limit before marking a message as dead.
func WithMaxAttempts(attempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

// WithClock sets the time source used by the store.
func WithClock(clock jobrelay.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithGenerator sets the message ID generator.
func WithGenerator(gen jobrelay.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}

// WithValidatePayload enables or disables envelope validation on enqueue.
func WithValidatePayload(enabled bool) Option {
	return func(c *Config) {
		c.ValidatePayload = enabled
		c.validatePayloadSet = true
	}
}
