// v0
// internal/http/router.go
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"nrgchamp/condenser/internal/analysis"
	"nrgchamp/condenser/internal/metrics"
	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/samples"
)

// Service is what the API needs from the application: evaluation plus the
// stored runs and active plant configuration.
type Service interface {
	Evaluate(ctx context.Context, t *samples.Table, source string) (analysis.Report, error)
	Run(id string) (analysis.Report, error)
	Runs(limit int) []analysis.Summary
	Plant() plant.Config
}

// NewRouter wires every route of the condenser API.
func NewRouter(logger *slog.Logger, health *HealthState, svc Service) *mux.Router {
	api := &runsAPI{svc: svc, log: logger.With(slog.String("component", "http"))}

	r := mux.NewRouter()
	r.Handle("/health", healthLiveHandler()).Methods(http.MethodGet)
	r.Handle("/health/live", healthLiveHandler()).Methods(http.MethodGet)
	r.Handle("/health/ready", healthReadyHandler(health)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/runs", api.create).Methods(http.MethodPost)
	r.HandleFunc("/v1/runs", api.list).Methods(http.MethodGet)
	r.HandleFunc("/v1/runs/{id}", api.get).Methods(http.MethodGet)
	r.HandleFunc("/v1/runs/{id}/failures", api.failures).Methods(http.MethodGet)
	r.HandleFunc("/v1/plant", api.plant).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func healthLiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func healthReadyHandler(health *HealthState) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if health == nil || !health.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}


func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]string{"error": msg})
}
