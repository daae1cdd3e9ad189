package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderRegistersAndCounts(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveBuildDuration("html", 1500*time.Millisecond)
	rec.IncBuildOutcome("html", OutcomeSuccess)
	rec.IncBuildOutcome("html", OutcomeFailed)
	rec.IncPublish(true)
	rec.SetBrokenLinks(3)

	if got := testutil.ToFloat64(rec.buildOutcome.WithLabelValues("html", "success")); got != 1 {
		t.Errorf("build outcome success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.buildOutcome.WithLabelValues("html", "failed")); got != 1 {
		t.Errorf("build outcome failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.publishes.WithLabelValues("success")); got != 1 {
		t.Errorf("publishes success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.brokenLinks); got != 3 {
		t.Errorf("broken links gauge = %v, want 3", got)
	}

	if n := testutil.CollectAndCount(rec.buildDuration); n != 1 {
		t.Errorf("expected 1 duration series, got %d", n)
	}
}

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveBuildDuration("html", time.Second)
	r.IncBuildOutcome("html", OutcomeCanceled)
	r.IncPublish(false)
	r.SetBrokenLinks(0)
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	var p *PrometheusRecorder
	p.ObserveBuildDuration("html", time.Second)
	p.IncBuildOutcome("html", OutcomeSuccess)
	p.IncPublish(true)
	p.SetBrokenLinks(1)
}
