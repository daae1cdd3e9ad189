package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	buildDuration *prom.HistogramVec
	buildOutcome  *prom.CounterVec
	publishes     *prom.CounterVec
	brokenLinks   prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.buildDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docmake",
			Name:      "build_duration_seconds",
			Help:      "Duration of builder invocations by target",
			Buckets:   prom.DefBuckets,
		}, []string{"target"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docmake",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by target and final status",
		}, []string{"target", "outcome"})
		pr.publishes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docmake",
			Name:      "publishes_total",
			Help:      "Publish attempts by result",
		}, []string{"result"})
		pr.brokenLinks = prom.NewGauge(prom.GaugeOpts{
			Namespace: "docmake",
			Name:      "broken_links",
			Help:      "Broken links found by the most recent link check",
		})
		reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.publishes, pr.brokenLinks)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(target string, d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(target string, outcome OutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(target, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncPublish(success bool) {
	if p == nil || p.publishes == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.publishes.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) SetBrokenLinks(n int) {
	if p == nil || p.brokenLinks == nil {
		return
	}
	p.brokenLinks.Set(float64(n))
}
