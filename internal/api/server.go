package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vin-jex/job-overseer/internal/liveness"
	"github.com/vin-jex/job-overseer/internal/observability"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the ops endpoints of a worker or monitor process.
type Server struct {
	store    Pinger
	emitter  liveness.StatusProbe
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	mux      *mux.Router
}

type Option func(*Server)

// WithEmitter enables /debug/emitter.
func WithEmitter(emitter liveness.StatusProbe) Option {
	return func(s *Server) { s.emitter = emitter }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = gatherer }
}

func NewServer(storeLayer Pinger, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = observability.DiscardLogger()
	}

	server := &Server{
		store:    storeLayer,
		gatherer: prometheus.DefaultGatherer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.registerRoutes()

	return server
}

func (s *Server) Handler() http.Handler {
	return s.mux
}
