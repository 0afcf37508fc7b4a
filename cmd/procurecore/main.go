// Command procurecore serves the procurement bidding and contract settlement
// API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"procurecore/internal/adapters/api"
	"procurecore/internal/adapters/reports"
	"procurecore/internal/blob"
	"procurecore/internal/config"
	"procurecore/internal/core"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitFunc(1)
	}
}

func run(ctx context.Context, args []string, logOut io.Writer) error {
	fs := flag.NewFlagSet("procurecore", flag.ContinueOnError)
	fs.SetOutput(logOut)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	app, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: app.handler}
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "blob", app.blobDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	app.hub.Close()
	return srv.Shutdown(shutdownCtx)
}

// app holds the wired dependencies of a running server.
type app struct {
	logger     *slog.Logger
	handler    http.Handler
	hub        *api.Hub
	blobDriver blob.Driver
	closers    []func() error
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger}

	store, err := core.OpenStorage(cfg.Storage.Driver, cfg.Storage.Target, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if c, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.hub = api.NewHub(logger)
	opts := append(cfg.ServiceOptions(),
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewLoggerAuditRecorder(logger)),
		core.WithEventPublisher(a.hub),
	)

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, core.WithMetricsRecorder(recorder))
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if cfg.Archive.Enabled {
		artifacts, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open artifact store: %w", err)
		}
		a.blobDriver = artifacts.Driver()
		opts = append(opts, core.WithArtifactArchiver(reports.NewArchiver(artifacts, cfg.Archive.Prefix)))
	}

	svc := core.NewService(store, opts...)
	mux.Handle("/api/", api.NewHandler(svc, a.hub))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	a.handler = mux
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.Config{Log: cfg}.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
