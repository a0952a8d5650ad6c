package dispatch

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/velmie/jobrelay"
	"github.com/velmie/jobrelay/probe"
)

// Config defines executor and dispatcher collaborators.
type Config struct {
	Transport      Transport
	Probe          probe.Probe
	Logger         jobrelay.Logger
	TracerProvider trace.TracerProvider
}

func (c Config) withDefaults() Config {
	if c.Transport == nil {
		// No client timeout: a request runs until it completes or ctx is canceled.
		c.Transport = &http.Client{}
	}
	if c.Probe == nil {
		c.Probe = probe.Nop{}
	}
	if c.Logger == nil {
		c.Logger = jobrelay.NopLogger{}
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}

	return c
}

// Option configures an Executor or a Dispatcher.
type Option func(*Config)

// WithTransport sets the HTTP transport used for job requests.
func WithTransport(transport Transport) Option {
	return func(c *Config) {
		c.Transport = transport
	}
}

// WithProbe sets the outcome probe.
func WithProbe(p probe.Probe) Option {
	return func(c *Config) {
		c.Probe = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger jobrelay.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTracerProvider sets the tracer provider for job spans.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = provider
	}
}
