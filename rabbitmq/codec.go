package rabbitmq

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/jobrelay"
)

const (
	// HeaderAttempts counts failed deliveries of a message.
	HeaderAttempts = "x-attempts"
	// HeaderLastError carries the error of the last failed delivery.
	HeaderLastError = "x-last-error"

	contentTypeJSON = "application/json"
	maxErrorLen     = 1024
)

func encodeEnvelope(env jobrelay.Envelope) ([]byte, error) {
	env.Payload = env.PayloadOrEmpty()

	return json.Marshal(env)
}

func decodeDelivery(d amqp.Delivery) (jobrelay.Message, error) {
	var env jobrelay.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return jobrelay.Message{}, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if err := env.Validate(); err != nil {
		return jobrelay.Message{}, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	return jobrelay.Message{
		ID:        env.ID,
		JobName:   env.JobName,
		Payload:   env.PayloadOrEmpty(),
		CreatedAt: d.Timestamp,
		Attempts:  attempts(d.Headers),
	}, nil
}

func attempts(headers amqp.Table) int {
	switch v := headers[HeaderAttempts].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}

func truncate(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxErrorLen {
		return msg
	}

	return string(runes[:maxErrorLen])
}
