package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// PrometheusHandler returns an http.HandlerFunc that writes metrics in
// Prometheus text exposition format (version 0.0.4).
func PrometheusHandler(collector *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := collector.Stats()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		writeMetric(w, "promptstudio_ingests_total",
			"Total number of accepted ingest requests.",
			"counter", stats.Ingests)

		writeMetric(w, "promptstudio_touches_total",
			"Ingest requests that carried no prompt text.",
			"counter", stats.Touches)

		writeMetric(w, "promptstudio_prompts_total",
			"Original prompts appended.",
			"counter", stats.Prompts)

		writeMetric(w, "promptstudio_ai_prompts_total",
			"AI-rewritten prompts appended.",
			"counter", stats.AIPrompts)

		writeMetric(w, "promptstudio_usage_snapshots_total",
			"Usage snapshots upserted.",
			"counter", stats.UsageSnapshots)

		writeMetric(w, "promptstudio_system_info_total",
			"System-info snapshots upserted.",
			"counter", stats.SystemInfo)

		writeMetric(w, "promptstudio_webhook_calls_total",
			"System-info snapshots forwarded to the webhook.",
			"counter", stats.WebhookCalls)

		writeMetric(w, "promptstudio_active_requests",
			"Number of requests currently being processed.",
			"gauge", stats.ActiveRequests)

		writeMetricFloat(w, "promptstudio_uptime_seconds",
			"Number of seconds since the service started.",
			"gauge", collector.Uptime().Seconds())

		writeCounterVec(w, "promptstudio_errors_total",
			"Failed requests by error kind.",
			collector.errors)

		writeCounterVec(w, "promptstudio_advice_requests_total",
			"Advice requests by outcome.",
			collector.advice)

		writeGaugeVec(w, "promptstudio_enrichment_circuit_state",
			"Circuit breaker state per workflow (0=closed, 1=open, 2=half-open).",
			collector.breakers)

		writeHistogramVec(w, "promptstudio_request_duration_seconds",
			"HTTP request duration in seconds by route and status.",
			collector.latency)
	}
}

// writeMetric writes a single integer metric in Prometheus text format.
func writeMetric(w http.ResponseWriter, name, help, metricType string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

// writeMetricFloat writes a single float64 metric in Prometheus text format.
func writeMetricFloat(w http.ResponseWriter, name, help, metricType string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %g\n", name, value)
}

// formatLabels formats a label map as Prometheus label string, e.g. {type="foo",provider="bar"}.
func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// writeCounterVec writes a labeled counter vec in Prometheus text format.
func writeCounterVec(w http.ResponseWriter, name, help string, cv *counterVec) {
	entries := cv.snapshot()
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	for _, e := range entries {
		fmt.Fprintf(w, "%s%s %g\n", name, formatLabels(e.labels), e.value)
	}
}

// writeHistogramVec writes a labeled histogram vec in Prometheus text format.
func writeHistogramVec(w http.ResponseWriter, name, help string, hv *histogramVec) {
	histograms := hv.snapshot()
	if len(histograms) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", name)
	for _, h := range histograms {
		var cumulative int64
		for i, bound := range h.buckets {
			cumulative += h.counts[i]
			fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabelsWithLe(h.labels, fmt.Sprintf("%g", bound)), cumulative)
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabelsWithLe(h.labels, "+Inf"), h.count)
		labels := formatLabels(h.labels)
		fmt.Fprintf(w, "%s_sum%s %g\n", name, labels, h.sum)
		fmt.Fprintf(w, "%s_count%s %d\n", name, labels, h.count)
	}
}

// formatLabelsWithLe formats labels with an additional "le" label for
// histogram buckets.
func formatLabelsWithLe(labels map[string]string, le string) string {
	withLe := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		withLe[k] = v
	}
	withLe["le"] = le
	return formatLabels(withLe)
}

// writeGaugeVec writes a labeled gauge vec in Prometheus text format.
func writeGaugeVec(w http.ResponseWriter, name, help string, gv *gaugeVec) {
	entries := gv.snapshot()
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	for _, e := range entries {
		fmt.Fprintf(w, "%s%s %g\n", name, formatLabels(e.labels), e.value)
	}
}
