package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultExchange           = "jobrelay.jobs"
	defaultQueue              = "jobrelay.jobs"
	defaultBindingKey         = "#"
	defaultDeadLetterExchange = "jobrelay.jobs.dlx"
	defaultDeadLetterQueue    = "jobrelay.jobs.dlq"
	exchangeKind              = "topic"
)

// Topology names the exchanges and queues used for job messages.
type Topology struct {
	Exchange           string
	Queue              string
	BindingKey         string
	DeadLetterExchange string
	DeadLetterQueue    string
}

func (t Topology) withDefaults() Topology {
	if t.Exchange == "" {
		t.Exchange = defaultExchange
	}
	if t.Queue == "" {
		t.Queue = defaultQueue
	}
	if t.BindingKey == "" {
		t.BindingKey = defaultBindingKey
	}
	if t.DeadLetterExchange == "" {
		t.DeadLetterExchange = defaultDeadLetterExchange
	}
	if t.DeadLetterQueue == "" {
		t.DeadLetterQueue = defaultDeadLetterQueue
	}

	return t
}

// DeclareTopology declares the job exchange, the work queue bound to it, and the
// dead-letter exchange and queue that rejected messages are routed to. Declarations
// are idempotent.
func DeclareTopology(ch Channel, topology Topology) error {
	if ch == nil {
		return ErrChannelRequired
	}
	t := topology.withDefaults()

	if err := ch.ExchangeDeclare(t.DeadLetterExchange, exchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("jobrelay rabbitmq: declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("jobrelay rabbitmq: declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(t.DeadLetterQueue, defaultBindingKey, t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("jobrelay rabbitmq: bind dead-letter queue: %w", err)
	}

	if err := ch.ExchangeDeclare(t.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("jobrelay rabbitmq: declare exchange: %w", err)
	}
	args := amqp.Table{"x-dead-letter-exchange": t.DeadLetterExchange}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("jobrelay rabbitmq: declare queue: %w", err)
	}
	if err := ch.QueueBind(t.Queue, t.BindingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("jobrelay rabbitmq: bind queue: %w", err)
	}

	return nil
}
