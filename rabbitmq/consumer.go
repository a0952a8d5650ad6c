package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/jobrelay"
)

// Consumer delivers queued job messages to a jobrelay.Handler.
type Consumer struct {
	ch      Channel
	handler jobrelay.Handler
	cfg     Config
}

// NewConsumer constructs a Consumer reading the topology's work queue.
func NewConsumer(ch Channel, handler jobrelay.Handler, opts ...Option) (*Consumer, error) {
	if ch == nil {
		return nil, ErrChannelRequired
	}
	if handler == nil {
		panic("jobrelay rabbitmq: nil Handler")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer{ch: ch, handler: handler, cfg: cfg.withDefaults()}, nil
}

// Run consumes until ctx is canceled, handling one delivery at a time.
// It returns nil on cancellation and ErrDeliveriesClosed if the broker closes the
// channel.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("jobrelay rabbitmq: set qos: %w", err)
	}
	deliveries, err := c.ch.Consume(c.cfg.Topology.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("jobrelay rabbitmq: consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			if err := c.Deliver(ctx, d); err != nil {
				c.cfg.Logger.Error("jobrelay rabbitmq settle failed", "delivery_tag", d.DeliveryTag, "err", err)
			}
		}
	}
}

// Deliver handles a single delivery and settles it with the broker.
func (c *Consumer) Deliver(ctx context.Context, d amqp.Delivery) error {
	msg, err := decodeDelivery(d)
	if err != nil {
		c.cfg.Logger.Warn("jobrelay rabbitmq rejecting undecodable message",
			"message_id", d.MessageId, "routing_key", d.RoutingKey, "err", err)
		c.cfg.Metrics.AddErrors(1)
		c.cfg.Metrics.AddDead(1)

		return d.Reject(false)
	}

	err = c.handle(ctx, msg)
	if err == nil {
		c.cfg.Metrics.AddAcked(1)

		return d.Ack(false)
	}
	// Shutdown mid-message: hand it back to the broker untouched.
	if ctx.Err() != nil {
		return errors.Join(err, d.Nack(false, true))
	}

	c.cfg.Metrics.AddErrors(1)
	action := c.cfg.FailureClassifier(ctx, msg, err)
	next := msg.Attempts + 1
	if action == jobrelay.FailureRetry && next >= c.cfg.MaxAttempts {
		action = jobrelay.FailureDead
	}
	c.cfg.Logger.Warn("jobrelay message failed",
		"id", msg.ID, "job", msg.JobName, "attempts", next, "action", action, "err", err)

	if action == jobrelay.FailureDead {
		c.cfg.Metrics.AddDead(1)

		return d.Reject(false)
	}

	if pubErr := c.republish(ctx, d, next, err); pubErr != nil {
		return errors.Join(pubErr, d.Nack(false, true))
	}
	c.cfg.Metrics.AddRetries(1)

	return d.Ack(false)
}

func (c *Consumer) handle(ctx context.Context, msg jobrelay.Message) error {
	handleCtx := ctx
	cancel := func() {}
	if c.cfg.HandlerTimeout > 0 {
		handleCtx, cancel = context.WithTimeout(ctx, c.cfg.HandlerTimeout)
	}
	defer cancel()

	start := time.Now()
	err := c.handler.Handle(handleCtx, msg)
	c.cfg.Metrics.ObserveHandleDuration(time.Since(start))

	return err
}

// republish sends a copy of d with an incremented attempt counter to the job
// exchange, keeping its routing key.
func (c *Consumer) republish(ctx context.Context, d amqp.Delivery, attempts int, cause error) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[HeaderAttempts] = int32(attempts)
	headers[HeaderLastError] = truncate(cause.Error())

	msg := amqp.Publishing{
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		ContentType:  d.ContentType,
		MessageId:    d.MessageId,
		Type:         d.Type,
		Timestamp:    d.Timestamp,
		Body:         d.Body,
	}
	if err := c.ch.PublishWithContext(ctx, c.cfg.Topology.Exchange, d.RoutingKey, false, false, msg); err != nil {
		return fmt.Errorf("jobrelay rabbitmq: republish failed: %w", err)
	}

	return nil
}
