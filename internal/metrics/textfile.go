// Package metrics exports chargeback usage in the Prometheus textfile format,
// for pickup by the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kebairia/chargeback/internal/chargeback"
)

const namespace = "cohesity_chargeback"

// ReportMetrics holds the gauges describing one report run.
type ReportMetrics struct {
	registry    *prometheus.Registry
	SourceBytes *prometheus.GaugeVec
	Sources     prometheus.Gauge
	TotalBytes  prometheus.Gauge
	LastRun     prometheus.Gauge
}

// NewReportMetrics registers the report gauges on reg.
func NewReportMetrics(reg *prometheus.Registry) (*ReportMetrics, error) {
	m := &ReportMetrics{
		registry: reg,
		SourceBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_bytes",
			Help:      "Bytes read from the source across restorable runs.",
		}, []string{"tenant_id", "tenant_name", "protection_group", "source"}),
		Sources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sources",
			Help:      "Number of sources in the last report.",
		}),
		TotalBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_bytes",
			Help:      "Sum of bytes read over all sources in the last report.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last report finished.",
		}),
	}

	for _, c := range []prometheus.Collector{m.SourceBytes, m.Sources, m.TotalBytes, m.LastRun} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// Observe replaces the gauges with the content of agg.
func (m *ReportMetrics) Observe(agg chargeback.Aggregate, finished time.Time) {
	m.SourceBytes.Reset()
	var total int64
	for name, rec := range agg {
		m.SourceBytes.WithLabelValues(rec.TenantID, rec.TenantName, rec.ProtectionGroup, name).
			Set(float64(rec.CumulativeBytes))
		total += rec.CumulativeBytes
	}
	m.Sources.Set(float64(len(agg)))
	m.TotalBytes.Set(float64(total))
	m.LastRun.Set(float64(finished.Unix()))
}

// WriteTextfile atomically writes the registry to path.
func (m *ReportMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}
