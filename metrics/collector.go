package metrics

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// invalidMetricChars matches characters not allowed in Prometheus metric names.
var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// Describe implements prometheus.Collector. The tracker is an unchecked
// collector: metric names are dynamic, so no descriptors are pre-declared.
func (t *Tracker) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector over the same store that backs
// ExportJSON, so the two views never disagree at a given instant.
func (t *Tracker) Collect(ch chan<- prometheus.Metric) {
	snap := t.ExportJSON()

	for name, v := range snap.Counters {
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(sanitizeName(name), "vaultd counter", nil, nil),
			prometheus.CounterValue, float64(v))
	}

	for name, v := range snap.Gauges {
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(sanitizeName(name), "vaultd gauge", nil, nil),
			prometheus.GaugeValue, v)
	}

	for name, stats := range snap.Timings {
		base := sanitizeName(name)
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(base+"_samples", "vaultd timing sample count", nil, nil),
			prometheus.GaugeValue, float64(stats.Count))
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(base+"_avg_seconds", "vaultd timing average", nil, nil),
			prometheus.GaugeValue, stats.AvgSeconds)
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(base+"_min_seconds", "vaultd timing minimum", nil, nil),
			prometheus.GaugeValue, stats.MinSeconds)
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(base+"_max_seconds", "vaultd timing maximum", nil, nil),
			prometheus.GaugeValue, stats.MaxSeconds)
	}
}

// Registry returns a private Prometheus registry with the tracker registered,
// suitable for serving with promhttp.
func (t *Tracker) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(t)
	return reg
}

// ExportPrometheus renders all metrics in Prometheus text exposition format.
func (t *Tracker) ExportPrometheus() (string, error) {
	families, err := t.Registry().Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encode metric family: %w", err)
		}
	}

	return buf.String(), nil
}

func sanitizeName(name string) string {
	return invalidMetricChars.ReplaceAllString(name, "_")
}
