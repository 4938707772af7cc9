package api

import (
	"net/http"

	"github.com/allaspectsdev/promptstudio/internal/metrics"
	"github.com/allaspectsdev/promptstudio/internal/store"
	"github.com/allaspectsdev/promptstudio/web"
)

// handleUsageTotal returns the sum of output tokens over all conversations.
func (s *Server) handleUsageTotal(w http.ResponseWriter, r *http.Request) {
	total, err := s.svc.TotalOutputTokens(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"totalOutputTokens": total})
}

type statsResponse struct {
	Live        *metrics.Stats    `json:"live"`
	Totals      *store.Totals     `json:"totals,omitempty"`
	Breakers    map[string]string `json:"breakers,omitempty"`
	CacheSize   int               `json:"cache_size"`
	Tokenizer   string            `json:"tokenizer"`
	ExactTokens bool              `json:"exact_tokens"`
}

// handleStats returns live counters together with database totals.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.syncBreakers()
	resp := statsResponse{
		Live:        s.collector.Stats(),
		Tokenizer:   s.tokens.Encoding(),
		ExactTokens: s.tokens.Exact(),
	}
	if s.store != nil {
		totals, err := s.store.Stats(r.Context())
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		resp.Totals = totals
	}
	if s.enricher != nil {
		resp.Breakers = s.enricher.BreakerStates()
	}
	if s.advice != nil {
		resp.CacheSize = s.advice.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// breakerGauge maps a breaker state name to its gauge value.
var breakerGauge = map[string]int{"closed": 0, "open": 1, "half_open": 2}

// syncBreakers publishes the enrichment breaker states to the collector.
func (s *Server) syncBreakers() {
	if s.enricher == nil {
		return
	}
	for workflow, state := range s.enricher.BreakerStates() {
		s.collector.SetBreakerState(workflow, breakerGauge[state])
	}
}

// handleMetrics serves Prometheus text.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.syncBreakers()
	metrics.PrometheusHandler(s.collector)(w, r)
}

// handleHealth checks the database is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDashboardConfig returns the settings the dashboard script needs at
// startup.
func (s *Server) handleDashboardConfig(w http.ResponseWriter, _ *http.Request) {
	ignored := s.cfg.Dashboard.IgnoredSessions
	if ignored == nil {
		ignored = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ignoredSessions": ignored,
		"adviceEnabled":   s.enricher != nil && s.enricher.AdviceEnabled(),
		"strategy":        s.live.Load().strategy,
	})
}

// handleDashboard serves the dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	data, err := web.Assets.ReadFile("templates/index.html")
	if err != nil {
		http.Error(w, "dashboard not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}
