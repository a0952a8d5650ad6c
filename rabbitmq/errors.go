package rabbitmq

import "errors"

var (
	// ErrChannelRequired is returned when a nil channel is provided.
	ErrChannelRequired = errors.New("jobrelay rabbitmq: channel is required")
	// ErrDeliveriesClosed is returned when the broker closes the delivery channel.
	ErrDeliveriesClosed = errors.New("jobrelay rabbitmq: delivery channel closed")
	// ErrInvalidBody is returned when a delivery body is not a job envelope.
	ErrInvalidBody = errors.New("jobrelay rabbitmq: invalid message body")
)
