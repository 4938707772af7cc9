// Package api serves the ingest endpoints, the conversation browsing API
// and the embedded dashboard.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/promptstudio/internal/cache"
	"github.com/allaspectsdev/promptstudio/internal/config"
	"github.com/allaspectsdev/promptstudio/internal/enrich"
	"github.com/allaspectsdev/promptstudio/internal/metrics"
	"github.com/allaspectsdev/promptstudio/internal/security"
	"github.com/allaspectsdev/promptstudio/internal/session"
	"github.com/allaspectsdev/promptstudio/internal/store"
	"github.com/allaspectsdev/promptstudio/internal/tokenizer"
	"github.com/allaspectsdev/promptstudio/internal/tracing"
	"github.com/allaspectsdev/promptstudio/web"
)

// Deps are the collaborators a Server is built from. Enricher, Advice and
// Tokenizer may be nil.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Service   *session.Service
	Collector *metrics.Collector
	Enricher  *enrich.Client
	Advice    *cache.AdviceCache
	Tokenizer *tokenizer.Tokenizer
	Logger    zerolog.Logger
}

// Server is the daemon's HTTP surface.
type Server struct {
	router    chi.Router
	cfg       *config.Config
	store     *store.Store
	svc       *session.Service
	collector *metrics.Collector
	enricher  *enrich.Client
	advice    *cache.AdviceCache
	tokens    *tokenizer.Tokenizer
	logger    zerolog.Logger
	live      atomic.Pointer[liveSettings]
	server    *http.Server
}

// liveSettings are the config values that take effect without a restart.
type liveSettings struct {
	policy   session.IngestPolicy
	strategy session.Strategy
	first    session.FirstMessageRule
	// limiter is nil when advice requests are not rate limited.
	limiter *security.Limiter
}

// adviceLimiterKeys bounds how many client addresses keep a bucket.
const adviceLimiterKeys = 4096

func settingsFrom(cfg *config.Config) *liveSettings {
	strategy, err := session.ParseStrategy(cfg.Ingest.PairingStrategy)
	if err != nil {
		strategy = session.StrategyExchange
	}
	first, err := session.ParseFirstMessageRule(cfg.Ingest.FirstMessage)
	if err != nil {
		first = session.FirstMessageConversation
	}
	ls := &liveSettings{
		policy:   session.IngestPolicy{RequireContent: cfg.Ingest.RequireContent},
		strategy: strategy,
		first:    first,
	}
	if e := cfg.Enrichment; e.AdviceRatePerMin > 0 {
		ls.limiter = security.NewLimiter(e.AdviceRatePerMin, e.AdviceBurst, adviceLimiterKeys)
	}
	return ls
}

// New builds the router and wires every route.
func New(d Deps) *Server {
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	svc := d.Service
	if svc == nil {
		svc = session.NewService(store.NewSessionAdapter(d.Store))
	}
	collector := d.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}
	tokens := d.Tokenizer
	if tokens == nil {
		tokens = tokenizer.New("")
	}
	s := &Server{
		cfg:       cfg,
		store:     d.Store,
		svc:       svc,
		collector: collector,
		enricher:  d.Enricher,
		advice:    d.Advice,
		tokens:    tokens,
		logger:    d.Logger.With().Str("component", "api").Logger(),
	}
	s.live.Store(settingsFrom(cfg))

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Dashboard.AllowedOrigins))
	r.Use(tracing.HTTPMiddleware)
	r.Use(collector.Middleware)
	r.Use(maxBody(cfg.Server.MaxBodySize))

	r.Route("/api", func(r chi.Router) {
		r.Post("/update-convex", s.handleIngest)
		r.Post("/ingest", s.handleIngest)

		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Post("/conversations/{id}/advice", s.handleAdvice)

		r.Get("/sessions/{session}/first-message", s.handleFirstMessage)
		r.Post("/sessions/{session}/enrichment", s.handleMarkEnrichment)

		r.Post("/system-info", s.handlePostSystemInfo)
		r.Get("/system-info", s.handleListSystemInfo)
		r.Get("/system-info/{session}", s.handleGetSystemInfo)

		r.Get("/usage/total", s.handleUsageTotal)
		r.Get("/stats", s.handleStats)
		r.Get("/health", s.handleHealth)
		r.Get("/dashboard-config", s.handleDashboardConfig)
	})

	r.Get("/metrics", s.handleMetrics)

	if cfg.Dashboard.Enabled {
		staticFS := http.FileServer(http.FS(web.StaticFS()))
		r.Handle("/static/*", http.StripPrefix("/static/", staticFS))
		r.Get("/", s.handleDashboard)
	}

	s.router = r
	return s
}

// Reload applies the ingest policy, default pairing strategy and advice
// rate limit of cfg to subsequent requests. Rate limit buckets start over.
func (s *Server) Reload(cfg *config.Config) {
	s.live.Store(settingsFrom(cfg))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and blocks until the server is shut down.
func (s *Server) Start(addr string) error {
	sc := s.cfg.Server
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(sc.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(sc.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(sc.IdleTimeout) * time.Second,
	}

	s.logger.Info().Str("addr", addr).Bool("tls", sc.TLSEnabled).Msg("server starting")
	var err error
	if sc.TLSEnabled {
		err = s.server.ListenAndServeTLS(config.ExpandHome(sc.CertFile), config.ExpandHome(sc.KeyFile))
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
