package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) registerRoutes() {
	r := mux.NewRouter()

	r.Handle("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	r.HandleFunc(EmitterStatusPath, s.handleEmitterStatus).Methods(http.MethodGet)

	s.mux = r
}
