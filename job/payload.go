package job

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrorMessageKey carries the main request failure reason into onFail callbacks.
const ErrorMessageKey = "__error_message"

// ErrPayloadNotObject is returned when a raw payload is not a JSON object.
var ErrPayloadNotObject = errors.New("payload is not a JSON object")

// Payload is the key/value input of a job. Values may be nil.
type Payload map[string]any

// IsKeyPresent reports whether key exists in payload. A nil value counts as present.
// Required-key checks use this predicate.
func IsKeyPresent(payload Payload, key string) bool {
	_, ok := payload[key]

	return ok
}

// HasNonNullValue reports whether key exists in payload with a non-nil value.
// Query string and body projection use this predicate.
func HasNonNullValue(payload Payload, key string) bool {
	value, ok := payload[key]

	return ok && value != nil
}

// With returns a copy of p with key set to value. p is left untouched.
func (p Payload) With(key string, value any) Payload {
	out := make(Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[key] = value

	return out
}

// DecodePayload parses a single JSON object, keeping numbers as json.Number.
// Trailing data after the object is rejected.
// An empty input decodes to an empty payload.
func DecodePayload(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Payload{}, nil
	}
	if raw[0] != '{' {
		return nil, ErrPayloadNotObject
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.Join(ErrPayloadNotObject, err)
	}
	if dec.More() {
		return nil, ErrPayloadNotObject
	}
	if payload == nil {
		payload = Payload{}
	}

	return payload, nil
}
