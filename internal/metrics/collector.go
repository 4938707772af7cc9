// Package metrics keeps in-process counters for the daemon and exposes
// them as JSON for the dashboard and as Prometheus text.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Advice outcomes recorded by RecordAdvice.
const (
	AdviceFetched     = "fetched"
	AdviceCacheHit    = "cache_hit"
	AdviceUnavailable = "unavailable"
	AdviceRateLimited = "rate_limited"
)

// Collector tracks live metrics with atomic counters and small labeled
// vectors. All methods are safe for concurrent use.
type Collector struct {
	ingests        int64
	touches        int64
	prompts        int64
	aiPrompts      int64
	usageSnapshots int64
	systemInfo     int64
	webhookCalls   int64
	activeRequests int64

	errors   *counterVec
	advice   *counterVec
	latency  *histogramVec
	breakers *gaugeVec

	startTime time.Time
}

// Stats is a point-in-time snapshot of the collector, served by
// /api/stats alongside the database totals.
type Stats struct {
	Uptime         string           `json:"uptime"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	Ingests        int64            `json:"ingests"`
	Touches        int64            `json:"touches"`
	Prompts        int64            `json:"prompts"`
	AIPrompts      int64            `json:"ai_prompts"`
	UsageSnapshots int64            `json:"usage_snapshots"`
	SystemInfo     int64            `json:"system_info"`
	WebhookCalls   int64            `json:"webhook_calls"`
	ActiveRequests int64            `json:"active_requests"`
	Advice         map[string]int64 `json:"advice"`
	Errors         map[string]int64 `json:"errors"`
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		errors:    newCounterVec("kind"),
		advice:    newCounterVec("outcome"),
		latency:   newHistogramVec(defaultBuckets, "route", "status"),
		breakers:  newGaugeVec("workflow"),
		startTime: time.Now(),
	}
}

// RecordIngest counts one accepted ingest request and what it carried.
func (c *Collector) RecordIngest(hasPrompt, hasAIPrompt, hasUsage bool) {
	atomic.AddInt64(&c.ingests, 1)
	if !hasPrompt && !hasAIPrompt {
		atomic.AddInt64(&c.touches, 1)
	}
	if hasPrompt {
		atomic.AddInt64(&c.prompts, 1)
	}
	if hasAIPrompt {
		atomic.AddInt64(&c.aiPrompts, 1)
	}
	if hasUsage {
		atomic.AddInt64(&c.usageSnapshots, 1)
	}
}

// RecordSystemInfo counts a stored system-info snapshot and whether it was
// forwarded to the webhook.
func (c *Collector) RecordSystemInfo(forwarded bool) {
	atomic.AddInt64(&c.systemInfo, 1)
	if forwarded {
		atomic.AddInt64(&c.webhookCalls, 1)
	}
}

// RecordError counts a failed request by error kind, e.g. "malformed_body".
func (c *Collector) RecordError(kind string) {
	c.errors.inc(kind)
}

// RecordAdvice counts an advice request by outcome.
func (c *Collector) RecordAdvice(outcome string) {
	c.advice.inc(outcome)
}

// SetBreakerState publishes a workflow breaker state (0 closed, 1 open,
// 2 half open).
func (c *Collector) SetBreakerState(workflow string, state int) {
	c.breakers.set(float64(state), workflow)
}

// ObserveRequest records the duration of an HTTP request.
func (c *Collector) ObserveRequest(route string, status int, d time.Duration) {
	c.latency.observe(d.Seconds(), route, strconv.Itoa(status))
}

// IncrementActive increments the in-flight request gauge.
func (c *Collector) IncrementActive() {
	atomic.AddInt64(&c.activeRequests, 1)
}

// DecrementActive decrements the in-flight request gauge.
func (c *Collector) DecrementActive() {
	atomic.AddInt64(&c.activeRequests, -1)
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Stats returns a snapshot of all counters.
func (c *Collector) Stats() *Stats {
	up := c.Uptime()
	return &Stats{
		Uptime:         formatDuration(up),
		UptimeSeconds:  int64(up.Seconds()),
		Ingests:        atomic.LoadInt64(&c.ingests),
		Touches:        atomic.LoadInt64(&c.touches),
		Prompts:        atomic.LoadInt64(&c.prompts),
		AIPrompts:      atomic.LoadInt64(&c.aiPrompts),
		UsageSnapshots: atomic.LoadInt64(&c.usageSnapshots),
		SystemInfo:     atomic.LoadInt64(&c.systemInfo),
		WebhookCalls:   atomic.LoadInt64(&c.webhookCalls),
		ActiveRequests: atomic.LoadInt64(&c.activeRequests),
		Advice:         c.advice.totals(),
		Errors:         c.errors.totals(),
	}
}

// formatDuration renders a duration as e.g. "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, strconv.Itoa(days)+"d")
	}
	if hours > 0 {
		parts = append(parts, strconv.Itoa(hours)+"h")
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, strconv.Itoa(minutes)+"m")
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += " " + p
	}
	return out
}
