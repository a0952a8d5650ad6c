package job

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig indicates a malformed job configuration source.
	ErrInvalidConfig = errors.New("job: invalid config")
	// ErrJobNotFound is returned when a job name is not registered.
	ErrJobNotFound = errors.New("job config not found")
	// ErrPayloadMismatch is returned when a payload lacks required keys.
	ErrPayloadMismatch = errors.New("payload does not match job config")
	// ErrCallbackResolution is matched by every callback resolution failure.
	ErrCallbackResolution = errors.New("job: callback resolution failed")
	// ErrCallbackCycle indicates a job reachable from its own callbacks.
	ErrCallbackCycle = errors.New("callback cycle detected")
)

// CallbackError reports a callback name that could not be resolved.
type CallbackError struct {
	// Job is the job whose callback slot failed to resolve.
	Job string
	// Slot is one of "on_start", "on_success" or "on_fail".
	Slot string
	// Callback is the referenced job name.
	Callback string
	// Path lists the jobs from the resolution root down to Job.
	Path []string
	Err  error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s callback %q of job %q (path %s): %v",
		e.Slot, e.Callback, e.Job, strings.Join(e.Path, " -> "), e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Is makes every CallbackError match ErrCallbackResolution.
func (e *CallbackError) Is(target error) bool {
	return target == ErrCallbackResolution
}

func notFound(name string) error {
	return fmt.Errorf("%w for job name: %s", ErrJobNotFound, name)
}

func invalidConfig(source, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, source, fmt.Sprintf(format, args...))
}
