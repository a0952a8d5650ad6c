// Package probe provides sinks that observe per-job outcomes.
//
// Probes never influence control flow: the executor and dispatcher report to them and
// move on. Implementations range from a no-op (production default) through an
// in-memory counter used by tests to Redis and Prometheus backed aggregators.
package probe

import (
	"sync"

	"github.com/velmie/jobrelay/job"
)

// Probe observes job outcomes.
type Probe interface {
	// OK records a job that completed successfully.
	OK(jobName string, payload job.Payload)
	// Failed records a job failure with a human-readable reason.
	Failed(jobName string, payload job.Payload, reason string)
}

// Event is a single observed outcome. Reason is empty for successes.
type Event struct {
	JobName string      `json:"jobName"`
	Payload job.Payload `json:"payload"`
	Reason  string      `json:"reason,omitempty"`
}

// Nop discards all reports.
type Nop struct{}

// OK implements Probe.
func (Nop) OK(string, job.Payload) {}

// Failed implements Probe.
func (Nop) Failed(string, job.Payload, string) {}

// Counting counts outcomes and keeps the last event. It is safe for concurrent use.
type Counting struct {
	mu      sync.Mutex
	ok      int
	failed  int
	last    Event
	hasLast bool
}

// NewCounting returns an empty counting probe.
func NewCounting() *Counting {
	return &Counting{}
}

// OK implements Probe.
func (c *Counting) OK(jobName string, payload job.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ok++
	c.last = Event{JobName: jobName, Payload: payload}
	c.hasLast = true
}

// Failed implements Probe.
func (c *Counting) Failed(jobName string, payload job.Payload, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failed++
	c.last = Event{JobName: jobName, Payload: payload, Reason: reason}
	c.hasLast = true
}

// OKCount returns the number of OK reports.
func (c *Counting) OKCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ok
}

// FailedCount returns the number of Failed reports.
func (c *Counting) FailedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.failed
}

// Last returns the most recent event and whether any event was recorded.
func (c *Counting) Last() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last, c.hasLast
}

// Reset clears counters and the last event.
func (c *Counting) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ok, c.failed = 0, 0
	c.last, c.hasLast = Event{}, false
}

type multi []Probe

// Multi fans reports out to every probe in order.
func Multi(probes ...Probe) Probe {
	out := make(multi, 0, len(probes))
	for _, p := range probes {
		if p != nil {
			out = append(out, p)
		}
	}

	return out
}

func (m multi) OK(jobName string, payload job.Payload) {
	for _, p := range m {
		p.OK(jobName, payload)
	}
}

func (m multi) Failed(jobName string, payload job.Payload, reason string) {
	for _, p := range m {
		p.Failed(jobName, payload, reason)
	}
}
