package jobrelay

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID identifies a queued message. New IDs are UUID v7, so they sort by creation time.
type ID = uuid.UUID

// IDGenerator creates new identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (ID, error)
}

// UUIDv7Generator produces time-ordered UUID v7 identifiers.
type UUIDv7Generator struct{}

// New implements IDGenerator.
func (UUIDv7Generator) New() (ID, error) {
	return uuid.NewV7()
}

// Envelope is a message to be enqueued by a producer.
type Envelope struct {
	// ID is optional, if zero the store assigns a UUID v7.
	ID ID `json:"id,omitzero"`
	// JobName names the job definition the consumer should run.
	JobName string `json:"jobName"`
	// Payload must be a JSON object. Empty means {}.
	Payload json.RawMessage `json:"payload"`
}

// Validate checks the job name and that the payload is a JSON object.
func (e Envelope) Validate() error {
	if e.JobName == "" {
		return ErrJobNameRequired
	}
	if !isJSONObject(e.Payload) {
		return ErrInvalidPayload
	}

	return nil
}

// PayloadOrEmpty returns the payload, or {} when it is empty.
func (e Envelope) PayloadOrEmpty() json.RawMessage {
	if len(bytes.TrimSpace(e.Payload)) == 0 {
		return json.RawMessage(`{}`)
	}

	return e.Payload
}

// RoutingKey returns the broker routing key of the envelope's job.
func (e Envelope) RoutingKey() string {
	return RoutingKey(e.JobName)
}

// Message is a queued job message fetched for processing.
type Message struct {
	ID        ID
	JobName   string
	Payload   json.RawMessage
	CreatedAt time.Time
	// Attempts counts previous failed deliveries.
	Attempts int
}

// Failure captures a processing error for a message.
type Failure struct {
	ID  ID
	Err error
}

// RoutingKey derives a broker routing key from a job name: hyphens become dots.
func RoutingKey(jobName string) string {
	return strings.ReplaceAll(jobName, "-", ".")
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	if trimmed[0] != '{' {
		return false
	}

	return json.Valid(trimmed)
}
