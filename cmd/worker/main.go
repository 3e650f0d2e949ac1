// Worker is a long-running executor that runs one job at a time and keeps
// that job alive in the store with periodic heartbeats.
//
// Responsibilities:
//   - Claim PENDING jobs and execute them
//   - Publish the running job through the current-job handle
//   - Heartbeat the running job every HEARTBEAT_INTERVAL
//   - Exit on heartbeat failure when SHUTDOWN_ON_ERROR is set
//
// Workers do not detect dead jobs. The monitor does.
//
// This binary is intended to be run as a standalone process under a
// supervisor that restarts it.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vin-jex/job-overseer/internal/api"
	"github.com/vin-jex/job-overseer/internal/backend"
	"github.com/vin-jex/job-overseer/internal/config"
	"github.com/vin-jex/job-overseer/internal/liveness"
	"github.com/vin-jex/job-overseer/internal/observability"
	"github.com/vin-jex/job-overseer/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := observability.NewLogger("worker", observability.LoggerOptions{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	storeLayer, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer storeLayer.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	current := &liveness.CurrentJob{}
	emitter := liveness.NewEmitter(
		cfg.Liveness,
		storeLayer,
		current,
		logger,
		liveness.WithEmitterMetrics(metrics),
	)

	w := worker.New(uuid.New(), storeLayer, current, worker.SleepJob, logger)

	server := api.NewServer(storeLayer, logger,
		api.WithEmitter(emitter),
		api.WithGatherer(registry),
	)
	httpServer := &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      server.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", "err", err)
		}
	}()

	go func() {
		if err := emitter.Run(ctx); err != nil {
			logger.Error("heartbeat emitter stopped", "err", err)
			stop()
		}
	}()

	if err := w.Run(ctx); err != nil {
		logger.Error("worker stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)
}
