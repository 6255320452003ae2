package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType is the kind of a recorded sample.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Prediction metric names.
const (
	MetricPredictionTotal    = "prediction_total"
	MetricPredictionPhishing = "prediction_phishing"
	MetricPredictionLatency  = "prediction_latency_ms"
	MetricPredictionCacheHit = "prediction_cache_hit"
)

const maxHistory = 1000

// Metric is one recorded sample.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// MetricSummary aggregates the retained history of one metric. Count, Sum
// and Average cover the retained samples only; Total is the lifetime value
// of a counter.
type MetricSummary struct {
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	Latest    float64   `json:"latest"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Average   float64   `json:"average"`
	Sum       float64   `json:"sum"`
	Total     float64   `json:"total,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricsCollector keeps a bounded in-memory history per metric name.
// Counters also keep a running total that history trimming never touches.
type MetricsCollector struct {
	metrics     map[string][]*Metric
	counters    map[string]float64
	metricsLock sync.RWMutex

	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string][]*Metric),
		counters:  make(map[string]float64),
		startTime: time.Now(),
	}
}

// RecordMetric appends a sample, dropping the oldest 10% once the history
// exceeds maxHistory.
func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	mc.appendLocked(metric)
}

func (mc *MetricsCollector) appendLocked(metric *Metric) {
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now()
	}

	history := append(mc.metrics[metric.Name], metric)
	if len(history) > maxHistory {
		history = history[maxHistory/10:]
	}
	mc.metrics[metric.Name] = history
}

func (mc *MetricsCollector) GetMetric(name string) ([]*Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	metrics, ok := mc.metrics[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}

	result := make([]*Metric, len(metrics))
	for i, m := range metrics {
		metricCopy := *m
		result[i] = &metricCopy
	}
	return result, nil
}

func (mc *MetricsCollector) GetAllMetrics() map[string][]*Metric {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	result := make(map[string][]*Metric, len(mc.metrics))
	for name, metrics := range mc.metrics {
		metricCopy := make([]*Metric, len(metrics))
		for i, m := range metrics {
			m := *m
			metricCopy[i] = &m
		}
		result[name] = metricCopy
	}
	return result
}

// GetMetricSummary returns an empty summary for a metric that has not
// been recorded yet.
func (mc *MetricsCollector) GetMetricSummary(name string) MetricSummary {
	summary := MetricSummary{Name: name}

	mc.metricsLock.RLock()
	summary.Total = mc.counters[name]
	mc.metricsLock.RUnlock()

	metrics, err := mc.GetMetric(name)
	if err != nil || len(metrics) == 0 {
		return summary
	}

	last := metrics[len(metrics)-1]
	summary.Count = len(metrics)
	summary.Latest = last.Value
	summary.Timestamp = last.Timestamp
	summary.Min = metrics[0].Value
	summary.Max = metrics[0].Value
	for _, m := range metrics {
		summary.Sum += m.Value
		if m.Value < summary.Min {
			summary.Min = m.Value
		}
		if m.Value > summary.Max {
			summary.Max = m.Value
		}
	}
	summary.Average = summary.Sum / float64(len(metrics))
	return summary
}

// IncrCounter adds value to the counter's running total and records the
// increment as a sample.
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	mc.counters[name] += value
	mc.appendLocked(&Metric{
		Name:   name,
		Type:   MetricTypeCounter,
		Value:  value,
		Labels: labels,
	})
}

// CounterTotal is the lifetime total of a counter fed by IncrCounter.
func (mc *MetricsCollector) CounterTotal(name string) float64 {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()
	return mc.counters[name]
}

func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeGauge,
		Value:  value,
		Labels: labels,
	})
}

func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeHistogram,
		Value:  value,
		Labels: labels,
	})
}

// RecordPrediction records one served prediction.
func (mc *MetricsCollector) RecordPrediction(label int, latency time.Duration, cacheHit bool) {
	mc.IncrCounter(MetricPredictionTotal, 1, nil)
	mc.IncrCounter(MetricPredictionPhishing, float64(label), nil)
	mc.RecordHistogram(MetricPredictionLatency, float64(latency.Microseconds())/1000, nil)
	hit := 0.0
	if cacheHit {
		hit = 1
	}
	mc.IncrCounter(MetricPredictionCacheHit, hit, nil)
}

// PredictionSummaries returns the summary of every prediction metric,
// keyed by name.
func (mc *MetricsCollector) PredictionSummaries() map[string]MetricSummary {
	names := []string{
		MetricPredictionTotal,
		MetricPredictionPhishing,
		MetricPredictionLatency,
		MetricPredictionCacheHit,
	}
	result := make(map[string]MetricSummary, len(names))
	for _, name := range names {
		result[name] = mc.GetMetricSummary(name)
	}
	return result
}

// StartSystemMetrics samples runtime stats every interval until ctx is done.
func (mc *MetricsCollector) StartSystemMetrics(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mc.collectRuntimeMetrics()
			}
		}
	}()
}

func (mc *MetricsCollector) collectRuntimeMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.RecordMetric(&Metric{
		Name:  "memory_heap_alloc",
		Type:  MetricTypeGauge,
		Value: float64(m.HeapAlloc),
		Help:  "Memory heap allocated in bytes",
	})
	mc.RecordMetric(&Metric{
		Name:  "memory_gc_count",
		Type:  MetricTypeCounter,
		Value: float64(m.NumGC),
		Help:  "Number of garbage collections",
	})
	mc.RecordMetric(&Metric{
		Name:  "system_goroutines",
		Type:  MetricTypeGauge,
		Value: float64(runtime.NumGoroutine()),
		Help:  "Number of goroutines",
	})
}

// ExportPrometheus renders each metric in the text exposition format,
// sorted by name. Counters report their running total, everything else its
// latest sample.
func (mc *MetricsCollector) ExportPrometheus() string {
	metrics := mc.GetAllMetrics()
	mc.metricsLock.RLock()
	totals := make(map[string]float64, len(mc.counters))
	for name, total := range mc.counters {
		totals[name] = total
	}
	mc.metricsLock.RUnlock()

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		metricList := metrics[name]
		if len(metricList) == 0 {
			continue
		}

		metric := metricList[len(metricList)-1]
		help := metric.Help
		if help == "" {
			help = fmt.Sprintf("Metric %s", name)
		}

		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, metric.Type)

		labelsStr := ""
		if len(metric.Labels) > 0 {
			labels := make([]string, 0, len(metric.Labels))
			for k, v := range metric.Labels {
				labels = append(labels, fmt.Sprintf(`%s="%s"`, k, v))
			}
			sort.Strings(labels)
			labelsStr = "{" + strings.Join(labels, ",") + "}"
		}
		value := metric.Value
		if total, ok := totals[name]; ok {
			value = total
		}
		fmt.Fprintf(&b, "%s%s %g %d\n", name, labelsStr, value, metric.Timestamp.UnixMilli())
	}
	return b.String()
}

func (mc *MetricsCollector) ExportJSON() (string, error) {
	data, err := json.MarshalIndent(mc.GetAllMetrics(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      m.Alloc,
			"sys":        m.Sys,
			"heap_alloc": m.HeapAlloc,
			"heap_inuse": m.HeapInuse,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}
