// Package rabbitmq carries job messages over RabbitMQ.
//
// Producers publish envelopes to a topic exchange with the routing key derived from
// the job name (order-created becomes order.created). Consumer delivers each message
// to a jobrelay.Handler: successes are acked, retryable failures are republished with
// an incremented x-attempts header until MaxAttempts, and everything else is rejected
// to the dead-letter exchange declared by DeclareTopology.
package rabbitmq
