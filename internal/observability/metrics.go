package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonathan/report-context/internal/processor"
)

// Metrics holds Prometheus metrics for a processing run. Each instance has its
// own registry so a run can be written out as a node_exporter textfile.
//
// Metrics:
//   - report_context_items_total{status} - items completed this run
//   - report_context_flushes_total - durable checkpoints written
//   - report_context_pending_items - size of the session's work list
//   - report_context_stored_results - results in the store after the last flush
//   - report_context_missing_reports - listed reports without a result at the end
//   - report_context_run_duration_seconds - wall time of the run
//   - report_context_run_status{status} - 1 for the final status of the run
type Metrics struct {
	registry *prometheus.Registry

	ItemsTotal    *prometheus.CounterVec
	FlushesTotal  prometheus.Counter
	PendingItems  prometheus.Gauge
	StoredResults prometheus.Gauge
	Missing       prometheus.Gauge
	RunDuration   prometheus.Gauge
	RunStatus     *prometheus.GaugeVec
}

// NewMetrics creates and registers the run metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_context_items_total",
				Help: "Items completed this run, by result status",
			},
			[]string{"status"},
		),
		FlushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "report_context_flushes_total",
			Help: "Durable checkpoints written this run",
		}),
		PendingItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "report_context_pending_items",
			Help: "Items in this session's work list",
		}),
		StoredResults: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "report_context_stored_results",
			Help: "Results in the store after the last flush",
		}),
		Missing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "report_context_missing_reports",
			Help: "Listed reports without a stored result at the end of the run",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "report_context_run_duration_seconds",
			Help: "Wall time of the run in seconds",
		}),
		RunStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "report_context_run_status",
				Help: "Final status of the run (1 for the status reached)",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.ItemsTotal,
		m.FlushesTotal,
		m.PendingItems,
		m.StoredResults,
		m.Missing,
		m.RunDuration,
		m.RunStatus,
	)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe updates the metrics from a processor event.
func (m *Metrics) Observe(event processor.ProgressEvent) {
	m.PendingItems.Set(float64(event.Pending))
	switch event.Kind {
	case processor.EventItem:
		m.ItemsTotal.WithLabelValues(string(event.Status)).Inc()
	case processor.EventFlush:
		m.FlushesTotal.Inc()
		m.StoredResults.Set(float64(event.Stored))
		m.Missing.Set(float64(event.Gaps))
	}
}

// ObserveSummary records the outcome of a finished run.
func (m *Metrics) ObserveSummary(s processor.Summary) {
	m.Missing.Set(float64(len(s.Gaps)))
	m.RunDuration.Set(s.Elapsed.Seconds())
	for _, status := range []processor.RunStatus{
		processor.RunComplete,
		processor.RunIncomplete,
		processor.RunInterrupted,
		processor.RunFailed,
	} {
		value := 0.0
		if status == s.Status {
			value = 1
		}
		m.RunStatus.WithLabelValues(string(status)).Set(value)
	}
}

// WriteTextfile writes the metrics in the Prometheus text format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
