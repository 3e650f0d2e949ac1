// Monitor is a watchdog that reclaims jobs whose heartbeats went stale.
//
// Responsibilities:
//   - Every HEARTBEAT_INTERVAL plus a random stagger, find RUNNING jobs
//     whose last heartbeat is older than tolerance x interval
//   - Reset those jobs to PENDING so a worker can claim them again
//   - Log the emitter status from EMITTER_STATUS_URL when dead jobs appear
//
// The monitor does not execute or schedule jobs.
//
// Several monitors may run against the same store; resets are idempotent
// and the stagger keeps them from polling in lockstep.
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vin-jex/job-overseer/internal/api"
	"github.com/vin-jex/job-overseer/internal/backend"
	"github.com/vin-jex/job-overseer/internal/config"
	"github.com/vin-jex/job-overseer/internal/liveness"
	"github.com/vin-jex/job-overseer/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := observability.NewLogger("monitor", observability.LoggerOptions{
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

	opts := []liveness.MonitorOption{liveness.WithMonitorMetrics(metrics)}
	if cfg.EmitterStatusURL != "" {
		opts = append(opts, liveness.WithStatusProbe(api.NewStatusClient(cfg.EmitterStatusURL, nil)))
	}

	monitor := liveness.NewMonitor(cfg.Liveness, storeLayer, logger, opts...)

	server := api.NewServer(storeLayer, logger, api.WithGatherer(registry))
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

	if err := monitor.Run(ctx); err != nil {
		logger.Error("liveness monitor stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)
}
