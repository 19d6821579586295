package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/signalsfoundry/eqplatform/assembler"
	"github.com/signalsfoundry/eqplatform/internal/api"
	"github.com/signalsfoundry/eqplatform/internal/config"
	"github.com/signalsfoundry/eqplatform/internal/history"
	"github.com/signalsfoundry/eqplatform/internal/logging"
	"github.com/signalsfoundry/eqplatform/internal/observability"
	"github.com/signalsfoundry/eqplatform/render"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "platform-server: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: cfg.Tracing.ServiceName})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, nil, nil); err != nil {
		log.Error(ctx, "platform server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the HTTP API and the gRPC health service until ctx is done.
// Listeners may be supplied by the caller; otherwise they are opened from
// cfg.
func run(ctx context.Context, cfg config.Config, log logging.Logger, httpLis, grpcLis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	var store *history.Store
	if cfg.HistoryPath != "" {
		if store, err = history.Open(cfg.HistoryPath); err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log); metricsSrv != nil {
		defer metricsSrv.Close()
	}

	renderer := render.NewOpenSCAD(
		render.WithBinary(cfg.OpenSCADPath),
		render.WithTimeout(cfg.RenderTimeout),
		render.WithTempDir(cfg.TempDir),
		render.WithLogger(log),
	)
	if version, err := renderer.Version(ctx); err != nil {
		log.Warn(ctx, "openscad not available; renders will fail until it is installed",
			logging.String("binary", cfg.OpenSCADPath),
			logging.Err(err),
		)
	} else {
		log.Info(ctx, "openscad found", logging.String("version", version))
	}

	asm := assembler.New(
		assembler.WithRenderer(renderer),
		assembler.WithLogger(log),
		assembler.WithMetrics(collector),
		assembler.WithConcurrency(cfg.Concurrency),
		assembler.WithRenderTimeout(cfg.RenderTimeout),
	)

	opts := []api.Option{
		api.WithProber(renderer),
		api.WithMetrics(collector),
		api.WithLogger(log),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
	}
	if store != nil {
		opts = append(opts, api.WithHistory(store))
	}

	if httpLis == nil {
		if httpLis, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
			return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
		}
	}
	if grpcLis == nil && cfg.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
		}
	}

	httpSrv := &http.Server{
		Handler:           api.NewServer(asm, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv, healthSrv := api.NewGRPCServer(log, collector)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go api.WatchRenderer(watchCtx, healthSrv, renderer, api.DefaultProbeInterval, log)

	errCh := make(chan error, 2)
	go func() {
		log.Info(ctx, "serving HTTP API", logging.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if grpcLis != nil {
		go func() {
			log.Info(ctx, "serving gRPC health", logging.String("addr", grpcLis.Addr().String()))
			if err := grpcSrv.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down platform server")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "http shutdown failed", logging.Err(err))
	}
	grpcSrv.GracefulStop()
	return runErr
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
