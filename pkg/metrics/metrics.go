// Package metrics wires cache collectors into a Prometheus registry and
// renders gathered metrics in a flat line format.
//
// Cache Metrics (pkg/cache, namespace "tiercache"):
//   - tiercache_hit_ratio, tiercache_miss_ratio (Gauge): lookup ratios
//   - tiercache_hits_total, tiercache_misses_total (Counter)
//   - tiercache_evictions_total, tiercache_expirations_total (Counter)
//   - tiercache_operations_total (Counter): gets, sets and deletes
//   - tiercache_cleanup_runs_total (Counter): cleanup cycles
//   - tiercache_memory_pressure_total (Counter): writes admitted over budget
//   - tiercache_memory_usage_percent (Gauge): tracked bytes / ceiling
//   - tiercache_size_bytes, tiercache_max_memory_bytes, tiercache_keys (Gauge)
//   - tiercache_tier_usage_percent{tier}, tiercache_tier_size_bytes{tier} (Gauge)
//   - tiercache_health_status (Gauge): 0 healthy, 1 warning, 2 critical
//
// Source Metrics (pkg/source):
//   - tiercache_source_fetches_total{result} (Counter)
//   - tiercache_source_retries_total{error_class} (Counter)
//
// Example Prometheus Queries:
//
//	# Hit rate over 5m
//	rate(tiercache_hits_total[5m]) /
//	(rate(tiercache_hits_total[5m]) + rate(tiercache_misses_total[5m]))
//
//	# Sustained memory pressure
//	increase(tiercache_memory_pressure_total[15m]) > 0
package metrics

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

// NewRegistry returns a registry with the Go runtime and process collectors
// plus the given collectors.
func NewRegistry(cs ...prometheus.Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	all := append([]prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}, cs...)

	for _, c := range all {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return reg, nil
}

// WriteText renders every sample as one "name{labels} type value" line.
// Summaries and histograms emit their _sum and _count series.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	bw := bufio.NewWriter(w)
	for _, mf := range families {
		name := mf.GetName()
		typ := typeName(mf.GetType())
		for _, m := range mf.GetMetric() {
			labels := formatLabels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				writeLine(bw, name, labels, typ, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				writeLine(bw, name, labels, typ, m.GetGauge().GetValue())
			case dto.MetricType_UNTYPED:
				writeLine(bw, name, labels, typ, m.GetUntyped().GetValue())
			case dto.MetricType_SUMMARY:
				writeLine(bw, name+"_sum", labels, typ, m.GetSummary().GetSampleSum())
				writeLine(bw, name+"_count", labels, typ, float64(m.GetSummary().GetSampleCount()))
			case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
				writeLine(bw, name+"_sum", labels, typ, m.GetHistogram().GetSampleSum())
				writeLine(bw, name+"_count", labels, typ, float64(m.GetHistogram().GetSampleCount()))
			}
		}
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, name, labels, typ string, v float64) {
	w.WriteString(name)
	w.WriteString(labels)
	w.WriteByte(' ')
	w.WriteString(typ)
	w.WriteByte(' ')
	w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	w.WriteByte('\n')
}

func typeName(t dto.MetricType) string {
	switch t {
	case dto.MetricType_COUNTER:
		return "counter"
	case dto.MetricType_GAUGE:
		return "gauge"
	case dto.MetricType_SUMMARY:
		return "summary"
	case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
		return "histogram"
	default:
		return "untyped"
	}
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, lp := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
