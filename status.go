package jobrelay

// Status represents the lifecycle state of a stored message.
type Status int16

const (
	// StatusPending indicates the message is waiting for delivery.
	StatusPending Status = 0
	// StatusProcessed indicates the message was handled (run or rejected as poison).
	StatusProcessed Status = 1
	// StatusDead indicates the message exhausted its attempts or was dead-lettered.
	StatusDead Status = -1
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessed:
		return "processed"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}
