// Package dispatch executes resolved jobs and decides what happens to the message
// that triggered them.
//
// Executor runs the job protocol against a payload: the onStart callback, the main
// HTTP request, the onSuccess callback and finally a success report. Any failure
// runs the onFail callback and ends the run with an Outcome whose Err wraps
// ErrExecutionFailed. Callbacks are jobs themselves and report their own outcomes.
//
// Dispatcher sits in front of the executor. Messages naming an unknown job, carrying
// a payload without the required keys, or pointing at callbacks that cannot be
// resolved are poison: they are reported, logged and acknowledged. Execution
// failures are returned so the transport can retry the message.
package dispatch
