// Package metrics exposes Prometheus counters for the sync pipeline:
// outbound deploys, queued jobs, applies, and media remapping.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records sync pipeline events.
type Metrics interface {
	IncDeploys(result string)
	IncJobs(jobType, status string)
	IncApplies(result string)
	IncMediaRemaps(result string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncDeploys(string)      {}
func (Noop) IncJobs(string, string) {}
func (Noop) IncApplies(string)      {}
func (Noop) IncMediaRemaps(string)  {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	deploys     *prometheus.CounterVec
	jobs        *prometheus.CounterVec
	applies     *prometheus.CounterVec
	mediaRemaps *prometheus.CounterVec
	once        sync.Once
}

// NewProm creates and registers the Prometheus-backed metrics.
func NewProm(namespace string) *Prom {
	p := &Prom{
		deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deploys_total",
			Help:      "Outbound deploy attempts by per-target result",
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs finished by type and terminal status",
		}, []string{"job_type", "status"}),
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applies_total",
			Help:      "Artifact applies by result",
		}, []string{"result"}),
		mediaRemaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_remaps_total",
			Help:      "Media reference remaps by result",
		}, []string{"result"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.deploys, p.jobs, p.applies, p.mediaRemaps)
	})
}

func (p *Prom) IncDeploys(result string) {
	p.deploys.WithLabelValues(result).Inc()
}

func (p *Prom) IncJobs(jobType, status string) {
	p.jobs.WithLabelValues(jobType, status).Inc()
}

func (p *Prom) IncApplies(result string) {
	p.applies.WithLabelValues(result).Inc()
}

func (p *Prom) IncMediaRemaps(result string) {
	p.mediaRemaps.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
