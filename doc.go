// Package jobrelay turns queued job messages into webhook calls.
//
// Producers enqueue messages naming a job and carrying a JSON object payload
// (see the mysql and rabbitmq packages). A Relay, or a rabbitmq.Consumer, hands each
// message to a Handler, normally a dispatch.Dispatcher, which looks up the job, runs its
// HTTP request and callback chain, and returns an error only for failures worth
// retrying. Malformed or unroutable messages are acknowledged and never retried.
//
// Typical flow:
//  1. Load job definitions with job.LoadDir.
//  2. Build a dispatch.Dispatcher around the registry.
//  3. Run a Relay with a storage-specific Consumer and the dispatcher as Handler.
//  4. Failed messages are retried until the store's attempt limit, then dead-lettered.
package jobrelay
