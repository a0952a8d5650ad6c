package probe

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/velmie/jobrelay/job"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"

	// unknownJob labels outcomes for names outside the registered set.
	unknownJob = "unknown"
)

// Prometheus counts outcomes per job in jobrelay_job_outcomes_total{job,outcome}.
type Prometheus struct {
	outcomes *prometheus.CounterVec
	known    map[string]struct{}
}

// NewPrometheus creates the counter and registers it with reg.
// A nil reg skips registration. Only jobNames get their own job label;
// every other name is counted under job="unknown".
func NewPrometheus(reg prometheus.Registerer, jobNames []string) (*Prometheus, error) {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobrelay",
		Name:      "job_outcomes_total",
		Help:      "Job outcomes reported by the executor and dispatcher.",
	}, []string{"job", "outcome"})

	if reg != nil {
		if err := reg.Register(outcomes); err != nil {
			return nil, err
		}
	}

	known := make(map[string]struct{}, len(jobNames))
	for _, name := range jobNames {
		known[name] = struct{}{}
	}

	return &Prometheus{outcomes: outcomes, known: known}, nil
}

func (p *Prometheus) label(jobName string) string {
	if _, ok := p.known[jobName]; ok {
		return jobName
	}
	return unknownJob
}

// OK implements Probe.
func (p *Prometheus) OK(jobName string, _ job.Payload) {
	p.outcomes.WithLabelValues(p.label(jobName), outcomeOK).Inc()
}

// Failed implements Probe.
func (p *Prometheus) Failed(jobName string, _ job.Payload, _ string) {
	p.outcomes.WithLabelValues(p.label(jobName), outcomeFailed).Inc()
}
