package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/jobrelay"
)

// Publisher sends job envelopes to the job exchange.
type Publisher struct {
	ch  Channel
	cfg Config
}

// NewPublisher constructs a Publisher on ch.
func NewPublisher(ch Channel, opts ...Option) (*Publisher, error) {
	if ch == nil {
		return nil, ErrChannelRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Publisher{ch: ch, cfg: cfg.withDefaults()}, nil
}

// Publish validates env, assigns an ID when it has none and publishes it as a
// persistent message routed by jobrelay.RoutingKey(env.JobName).
func (p *Publisher) Publish(ctx context.Context, env jobrelay.Envelope) (jobrelay.ID, error) {
	if err := env.Validate(); err != nil {
		return jobrelay.ID{}, err
	}
	if env.ID == (jobrelay.ID{}) {
		id, err := p.cfg.Generator.New()
		if err != nil {
			return jobrelay.ID{}, fmt.Errorf("jobrelay rabbitmq: generate id failed: %w", err)
		}
		env.ID = id
	}

	body, err := encodeEnvelope(env)
	if err != nil {
		return jobrelay.ID{}, fmt.Errorf("jobrelay rabbitmq: encode envelope: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  contentTypeJSON,
		MessageId:    env.ID.String(),
		Type:         env.JobName,
		Timestamp:    p.cfg.Clock.Now(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.cfg.Topology.Exchange, env.RoutingKey(), false, false, msg); err != nil {
		return jobrelay.ID{}, fmt.Errorf("jobrelay rabbitmq: publish failed: %w", err)
	}

	p.cfg.Logger.Debug("jobrelay message published", "id", env.ID, "job", env.JobName, "routing_key", env.RoutingKey())

	return env.ID, nil
}
