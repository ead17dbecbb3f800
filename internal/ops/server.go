// Package ops exposes the operational HTTP surface: health, Prometheus
// metrics and the latest decision snapshot.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/riskrun/internal/engine"
)

// LatestReader serves the most recent cycle result, typically the Redis
// cache.
type LatestReader interface {
	GetLatest(ctx context.Context) (*engine.CycleResult, error)
}

// Server is the ops HTTP server.
type Server struct {
	addr   string
	latest LatestReader
	http   *http.Server
}

// NewServer builds the ops server. latest may be nil; the snapshot
// endpoint then reports 404.
func NewServer(addr string, latest LatestReader) *Server {
	s := &Server{addr: addr, latest: latest}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/cycle/latest", s.handleLatest).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("Ops server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.latest == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cycle cache configured"})
		return
	}
	result, err := s.latest.GetLatest(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read latest cycle")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cycle recorded yet"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
