// Package daemon runs the promptstudio server process and the commands that
// control it.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/promptstudio/internal/api"
	"github.com/allaspectsdev/promptstudio/internal/cache"
	"github.com/allaspectsdev/promptstudio/internal/config"
	"github.com/allaspectsdev/promptstudio/internal/enrich"
	"github.com/allaspectsdev/promptstudio/internal/metrics"
	"github.com/allaspectsdev/promptstudio/internal/session"
	"github.com/allaspectsdev/promptstudio/internal/store"
	"github.com/allaspectsdev/promptstudio/internal/tokenizer"
	"github.com/allaspectsdev/promptstudio/internal/tracing"
	"github.com/allaspectsdev/promptstudio/internal/version"
)

const (
	dbFilename        = "promptstudio.db"
	cachePurgeEvery   = 10 * time.Minute
	shutdownGrace     = 30 * time.Second
	stopPollInterval  = 100 * time.Millisecond
	stopPollAttempts  = 30
	statusHTTPTimeout = 3 * time.Second
)

// DBPath returns the database location for a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(config.ExpandHome(dataDir), dbFilename)
}

// Run initialises every subsystem, serves HTTP and blocks until SIGINT or
// SIGTERM.
func Run(cfg *config.Config, foreground bool) error {
	dataDir := config.ExpandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logFile, err := setupLogging(dataDir, cfg.Server.LogLevel, foreground, os.Stdout)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log.Info().
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("promptstudio starting")

	pid := NewPIDFile(dataDir)
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Release(); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	st, err := store.Open(filepath.Join(dataDir, dbFilename))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	log.Info().Str("db_path", st.Path()).Msg("store opened")

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(bgCtx, tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version.Version,
			Exporter:    cfg.Tracing.Exporter,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			log.Warn().Err(err).Msg("tracing disabled")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					log.Warn().Err(err).Msg("tracing shutdown")
				}
			}()
			log.Info().Str("exporter", cfg.Tracing.Exporter).Msg("tracing enabled")
		}
	}

	collector := metrics.NewCollector()
	svc := session.NewService(store.NewSessionAdapter(st))

	advice, err := cache.New(store.NewCacheAdapter(st), cfg.Cache.TTLSeconds, cfg.Cache.MaxEntries, cfg.Cache.Enabled)
	if err != nil {
		return fmt.Errorf("creating advice cache: %w", err)
	}
	purgerDone := advice.StartPurger(bgCtx, cachePurgeEvery)

	enrichOpts := enrich.OptionsFromConfig(cfg.Enrichment)
	enrichOpts.Logger = &log.Logger
	enricher := enrich.New(enrichOpts)
	log.Info().
		Bool("advice", enricher.AdviceEnabled()).
		Bool("system_info_webhook", enricher.WebhookEnabled()).
		Str("redact", enrichOpts.Redactor.Mode()).
		Msg("enrichment configured")

	server := api.New(api.Deps{
		Config:    cfg,
		Store:     st,
		Service:   svc,
		Collector: collector,
		Enricher:  enricher,
		Advice:    advice,
		Tokenizer: tokenizer.New(""),
		Logger:    log.Logger,
	})

	if watcher := watchConfig(dataDir, server); watcher != nil {
		defer watcher.Close()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Addr()); err != nil {
			errCh <- err
		}
	}()

	log.Info().Str("url", cfg.Server.BaseURL()).Msg("promptstudio is ready")
	if foreground {
		fmt.Printf("\n  promptstudio is running!\n")
		fmt.Printf("  Ingest:    %s/api/ingest\n", cfg.Server.BaseURL())
		if cfg.Dashboard.Enabled {
			fmt.Printf("  Dashboard: %s/\n", cfg.Server.BaseURL())
		}
		fmt.Println()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		bgCancel()
		<-purgerDone
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	// Background goroutines must finish before the store closes.
	bgCancel()
	<-purgerDone

	log.Info().Msg("promptstudio stopped")
	return nil
}

// watchConfig hot-reloads the log level and the server's live settings
// when the config file changes. It returns nil when there is no file to
// watch.
func watchConfig(dataDir string, server *api.Server) *config.Watcher {
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}
	if _, err := os.Stat(configFile); err != nil {
		return nil
	}

	w, err := config.Watch(configFile)
	if err != nil {
		log.Warn().Err(err).Msg("failed to start config watcher; continuing without hot-reload")
		return nil
	}
	w.OnChange(func(_, newCfg *config.Config) {
		zerolog.SetGlobalLevel(parseLogLevel(newCfg.Server.LogLevel))
		server.Reload(newCfg)
	})
	log.Info().Str("file", configFile).Msg("config watcher started")
	return w
}

// Stop sends SIGTERM to the running daemon and waits briefly for it to
// exit.
func Stop(cfg *config.Config, out io.Writer) error {
	pid := NewPIDFile(config.ExpandHome(cfg.Server.DataDir))

	n, alive := pid.Running()
	if n == 0 {
		return fmt.Errorf("promptstudio does not appear to be running")
	}
	if !alive {
		if err := pid.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", err)
		}
		return fmt.Errorf("promptstudio is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(n)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", n, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", n, err)
	}
	fmt.Fprintf(out, "Sent SIGTERM to promptstudio (PID %d)\n", n)

	for i := 0; i < stopPollAttempts; i++ {
		time.Sleep(stopPollInterval)
		if !processAlive(n) {
			return nil
		}
	}
	return nil
}

// statusReport mirrors the /api/stats response.
type statusReport struct {
	Live struct {
		Uptime         string           `json:"uptime"`
		Ingests        int64            `json:"ingests"`
		ActiveRequests int64            `json:"active_requests"`
		Advice         map[string]int64 `json:"advice"`
		Errors         map[string]int64 `json:"errors"`
	} `json:"live"`
	Totals    *store.Totals     `json:"totals"`
	Breakers  map[string]string `json:"breakers"`
	CacheSize int               `json:"cache_size"`
}

// Status prints whether the daemon runs and, if it answers, a summary of
// its counters.
func Status(cfg *config.Config, out io.Writer) error {
	dataDir := config.ExpandHome(cfg.Server.DataDir)

	pid, alive := NewPIDFile(dataDir).Running()
	if !alive {
		fmt.Fprintln(out, "promptstudio is not running")
		return nil
	}
	fmt.Fprintf(out, "promptstudio is running (PID %d)\n", pid)

	if fi, err := os.Stat(filepath.Join(dataDir, dbFilename)); err == nil {
		fmt.Fprintf(out, "  Database:       %s (%s, modified %s)\n",
			fi.Name(), humanize.Bytes(uint64(fi.Size())), humanize.Time(fi.ModTime()))
	}

	client := &http.Client{Timeout: statusHTTPTimeout}
	resp, err := client.Get(cfg.Server.BaseURL() + "/api/stats")
	if err != nil {
		fmt.Fprintln(out, "  (server unreachable)")
		return nil
	}
	defer resp.Body.Close()

	var report statusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		fmt.Fprintf(out, "  (unreadable stats: %v)\n", err)
		return nil
	}
	printStatus(out, &report)
	return nil
}

func printStatus(out io.Writer, r *statusReport) {
	fmt.Fprintf(out, "  Uptime:         %s\n", r.Live.Uptime)
	fmt.Fprintf(out, "  Ingests:        %s\n", humanize.Comma(r.Live.Ingests))
	fmt.Fprintf(out, "  Active:         %d\n", r.Live.ActiveRequests)
	if t := r.Totals; t != nil {
		fmt.Fprintf(out, "  Conversations:  %s (%s enriched)\n", humanize.Comma(t.Conversations), humanize.Comma(t.Enriched))
		fmt.Fprintf(out, "  Prompts:        %s original, %s rewritten\n", humanize.Comma(t.Prompts), humanize.Comma(t.AIPrompts))
		fmt.Fprintf(out, "  Output tokens:  %s\n", humanize.Comma(t.TotalOutputTokens))
	}
	fmt.Fprintf(out, "  Advice cache:   %d entries (%d hits, %d fetched)\n",
		r.CacheSize, r.Live.Advice[metrics.AdviceCacheHit], r.Live.Advice[metrics.AdviceFetched])
	workflows := make([]string, 0, len(r.Breakers))
	for w := range r.Breakers {
		workflows = append(workflows, w)
	}
	sort.Strings(workflows)
	for _, w := range workflows {
		fmt.Fprintf(out, "  Breaker %-13s%s\n", w+":", r.Breakers[w])
	}
}
