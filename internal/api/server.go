package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/climatematch/internal/models"
	"github.com/lox/climatematch/internal/pipeline"
	"github.com/lox/climatematch/internal/preference"
	"github.com/lox/climatematch/internal/store"
)

// Scorer runs the per-city scoring pipeline.
type Scorer interface {
	Run(ctx context.Context, cities []models.City, profile *preference.Profile) []pipeline.CityResult
}

type Server struct {
	store  *store.Store
	scorer Scorer
	port   string
}

func NewServer(store *store.Store, scorer Scorer, port string) *Server {
	return &Server{
		store:  store,
		scorer: scorer,
		port:   port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/preferences/defaults", s.handlePreferenceDefaults)
	mux.HandleFunc("POST /api/scores", s.handleScores)
	mux.HandleFunc("GET /api/ingest", s.handleIngest)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
