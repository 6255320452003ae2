package monitoring

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestGetMetricSummary(t *testing.T) {
	mc := NewMetricsCollector()
	for _, v := range []float64{4, 1, 7} {
		mc.RecordHistogram(MetricPredictionLatency, v, nil)
	}

	summary := mc.GetMetricSummary(MetricPredictionLatency)
	if summary.Count != 3 || summary.Min != 1 || summary.Max != 7 || summary.Latest != 7 || summary.Average != 4 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestGetMetricSummaryUnknown(t *testing.T) {
	mc := NewMetricsCollector()
	summary := mc.GetMetricSummary("missing")
	if summary.Count != 0 || summary.Name != "missing" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if _, err := mc.GetMetric("missing"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestRecordMetricBoundsHistory(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < maxHistory+1; i++ {
		mc.IncrCounter(MetricPredictionTotal, 1, nil)
	}

	metrics, err := mc.GetMetric(MetricPredictionTotal)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) > maxHistory {
		t.Errorf("history not bounded: %d", len(metrics))
	}
}

func TestRecordPrediction(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordPrediction(1, 2*time.Millisecond, false)
	mc.RecordPrediction(0, 4*time.Millisecond, true)

	summaries := mc.PredictionSummaries()
	if got := summaries[MetricPredictionTotal].Sum; got != 2 {
		t.Errorf("prediction_total sum = %v, want 2", got)
	}
	if got := summaries[MetricPredictionPhishing].Sum; got != 1 {
		t.Errorf("prediction_phishing sum = %v, want 1", got)
	}
	if got := summaries[MetricPredictionCacheHit].Sum; got != 1 {
		t.Errorf("prediction_cache_hit sum = %v, want 1", got)
	}
	if got := summaries[MetricPredictionLatency].Average; got != 3 {
		t.Errorf("latency average = %v, want 3", got)
	}
}

func TestPredictionCountersOutliveHistory(t *testing.T) {
	mc := NewMetricsCollector()
	n := maxHistory + 501
	for i := 0; i < n; i++ {
		mc.RecordPrediction(i%2, time.Millisecond, false)
	}

	if got := mc.CounterTotal(MetricPredictionTotal); got != float64(n) {
		t.Errorf("prediction_total = %v, want %d", got, n)
	}
	summary := mc.GetMetricSummary(MetricPredictionPhishing)
	if summary.Total != float64(n/2) {
		t.Errorf("prediction_phishing total = %v, want %d", summary.Total, n/2)
	}
	if summary.Count > maxHistory {
		t.Errorf("history not bounded: %d", summary.Count)
	}

	out := mc.ExportPrometheus()
	if !strings.Contains(out, "\nprediction_total 1501 ") {
		t.Errorf("prometheus total not cumulative: %s", out)
	}
	if !strings.Contains(out, "\nprediction_phishing 750 ") {
		t.Errorf("prometheus phishing not cumulative: %s", out)
	}
}

func TestExportJSON(t *testing.T) {
	mc := NewMetricsCollector()
	mc.SetGauge("model_trees", 100, nil)

	out, err := mc.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if !strings.Contains(out, `"model_trees"`) {
		t.Errorf("missing metric: %s", out)
	}
}

func TestExportPrometheus(t *testing.T) {
	mc := NewMetricsCollector()
	mc.SetGauge("model_trees", 100, map[string]string{"model": "phish"})
	mc.IncrCounter(MetricPredictionTotal, 1, nil)

	out := mc.ExportPrometheus()
	if !strings.Contains(out, "# TYPE model_trees gauge") {
		t.Errorf("missing TYPE line: %s", out)
	}
	if !strings.Contains(out, `model_trees{model="phish"} 100`) {
		t.Errorf("missing labelled sample: %s", out)
	}
	if strings.Index(out, "model_trees") > strings.Index(out, MetricPredictionTotal) {
		t.Errorf("metrics not sorted: %s", out)
	}
}

func TestStartSystemMetrics(t *testing.T) {
	mc := NewMetricsCollector()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mc.StartSystemMetrics(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := mc.GetMetric("system_goroutines"); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("runtime metrics not collected")
}
