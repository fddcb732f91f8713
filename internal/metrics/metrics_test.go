package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestQueueDepthGauge_PerPriorityLabel(t *testing.T) {
	QueueDepthGauge.WithLabelValues("high").Set(3)
	QueueDepthGauge.WithLabelValues("low").Set(7)

	if got := gaugeValue(t, QueueDepthGauge.WithLabelValues("high")); got != 3 {
		t.Errorf("high queue depth = %v, want 3", got)
	}
	if got := gaugeValue(t, QueueDepthGauge.WithLabelValues("low")); got != 7 {
		t.Errorf("low queue depth = %v, want 7", got)
	}
}

func TestJobsProcessedCounter_IncrementsIndependently(t *testing.T) {
	JobsProcessedCounter.WithLabelValues("normal").Inc()
	JobsProcessedCounter.WithLabelValues("normal").Inc()
	JobsFailedCounter.WithLabelValues("normal").Inc()

	var processed, failed dto.Metric
	if err := JobsProcessedCounter.WithLabelValues("normal").(prometheus.Metric).Write(&processed); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := JobsFailedCounter.WithLabelValues("normal").(prometheus.Metric).Write(&failed); err != nil {
		t.Fatalf("write: %v", err)
	}
	if processed.GetCounter().GetValue() < 2 {
		t.Errorf("expected at least 2 processed jobs, got %v", processed.GetCounter().GetValue())
	}
	if failed.GetCounter().GetValue() < 1 {
		t.Errorf("expected at least 1 failed job, got %v", failed.GetCounter().GetValue())
	}
}

func TestBundlesActiveGauge_SetAndRead(t *testing.T) {
	BundlesActiveGauge.Set(2)
	if got := gaugeValue(t, BundlesActiveGauge); got != 2 {
		t.Errorf("bundles active = %v, want 2", got)
	}
}
