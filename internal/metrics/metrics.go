package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Provisioning holds the collectors describing provisioning runs.
// A nil *Provisioning is valid and records nothing.
type Provisioning struct {
	resources *prometheus.CounterVec
	runs      *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewProvisioning creates the collectors and registers them with reg.
func NewProvisioning(reg prometheus.Registerer) (*Provisioning, error) {
	p := &Provisioning{
		resources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driveprov_resources_total",
				Help: "Resources resolved by the provisioner, by kind and outcome (created or reused).",
			},
			[]string{"kind", "outcome"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driveprov_runs_total",
				Help: "Provisioning runs by final status.",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "driveprov_run_duration_seconds",
			Help:    "Wall time of provisioning runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{p.resources, p.runs, p.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ObserveResource counts one container or document resolution.
func (p *Provisioning) ObserveResource(kind, outcome string) {
	if p == nil {
		return
	}
	p.resources.WithLabelValues(kind, outcome).Inc()
}

// ObserveRun counts a finished run and its duration.
func (p *Provisioning) ObserveRun(status string, d time.Duration) {
	if p == nil {
		return
	}
	p.runs.WithLabelValues(status).Inc()
	p.duration.Observe(d.Seconds())
}

// Push sends everything in g to a Pushgateway. One-shot runs exit before a scrape could happen.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	return push.New(url, job).Gatherer(g).PushContext(ctx)
}
