// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/mhartwig/tunerhub/internal/catalog"
	"github.com/mhartwig/tunerhub/internal/config"
	"github.com/mhartwig/tunerhub/internal/livetv"
	xlog "github.com/mhartwig/tunerhub/internal/log"
	"github.com/mhartwig/tunerhub/internal/reccache"
	"github.com/mhartwig/tunerhub/internal/reconcile"
	"github.com/mhartwig/tunerhub/internal/refresh"
	"github.com/mhartwig/tunerhub/internal/timers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tunerhub %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xlog.Configure(xlog.Config{Level: "info", Service: "tunerhub"})
	logger := xlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Without an explicit --config, pick up the data dir's config.yaml when
	// one exists.
	effectivePath := *configPath
	if effectivePath == "" {
		autoPath := filepath.Join(config.Default().DataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	cfg, err := config.Load(effectivePath)
	if err != nil {
		logger.Fatal().Err(err).
			Str("event", "config.load_failed").
			Str("path", effectivePath).
			Msg("failed to load configuration")
	}
	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: "tunerhub"})

	if err := run(ctx, cfg, effectivePath); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str("event", "daemon.stopped").Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, configPath string) error {
	logger := xlog.WithComponent("daemon")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	reg := backend.NewRegistry()
	for _, bc := range cfg.Backends {
		client, err := backend.NewClient(bc.Driver, bc.Name, bc.Options)
		if err != nil {
			return fmt.Errorf("backend %q: %w", bc.Name, err)
		}
		if err := reg.AddBackends(client); err != nil {
			return err
		}
		logger.Info().
			Str("event", "daemon.backend_registered").
			Str("backend", bc.Name).
			Str("driver", bc.Driver).
			Msg("backend registered")
	}

	rec := reconcile.New(store, nil, nil)
	pipeline := refresh.New(reg, rec, refresh.Options{GuideDays: cfg.GuideDays})
	sched := refresh.NewScheduler(pipeline, reg, refresh.SchedulerOptions{
		Interval:   cfg.RefreshInterval,
		MinGap:     cfg.RefreshMinGap,
		StatusPath: filepath.Join(cfg.DataDir, "status.json"),
	})
	cache := reccache.New(reg, rec, cfg.RecordingTTL)
	sessions := livetv.NewManager(reg, store)
	tsvc := timers.New(reg, store, cache)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(sched, tsvc, sessions, cache),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(ctx) })

	if configPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, configPath, sched.Trigger)
		})
	}

	g.Go(func() error {
		logger.Info().
			Str("event", "daemon.listening").
			Str("addr", cfg.Listen).
			Int("backends", reg.Count()).
			Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sessions.Teardown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg config.Config) (catalog.Store, error) {
	if cfg.CatalogPath == "" {
		return catalog.NewMemoryStore(), nil
	}
	return catalog.OpenSQLite(cfg.CatalogPath)
}

func newRouter(sched *refresh.Scheduler, tsvc *timers.Service, sessions *livetv.Manager, cache *reccache.Cache) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/api/status", func(w http.ResponseWriter, req *http.Request) {
		backends, err := tsvc.Status(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"refresh":       sched.Status(),
			"backends":      backends,
			"open_sessions": len(sessions.Sessions()),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/api/refresh", func(w http.ResponseWriter, _ *http.Request) {
			sched.Trigger()
			cache.Invalidate()
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
