// Package server provides the subject hierarchy explorer: an embedded
// single-page UI plus a JSON API over an immutable explorer.Snapshot.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hurttlocker/subjectgraph/internal/explorer"
	"github.com/hurttlocker/subjectgraph/internal/metrics"
)

//go:embed index.html
var indexFS embed.FS

// shutdownTimeout bounds graceful shutdown after ctx is cancelled.
const shutdownTimeout = 10 * time.Second

// ServerConfig holds settings for the explorer server.
type ServerConfig struct {
	Snapshot *explorer.Snapshot
	Addr     string
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

// NewHandler builds the router. A nil logger or collector is replaced with a
// no-op logger or a fresh collector.
func NewHandler(cfg ServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NewCollector("subjectgraph")
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handlers{snap: cfg.Snapshot, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument(collector))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/", serveIndex)
	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", collector.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/relationships", h.relationships)
		r.Get("/concept_tree", h.conceptTree)
		r.Get("/hierarchy_tree", h.hierarchyTree)
		r.Get("/concepts", h.concepts)
		r.Get("/export_yaml", h.exportYAML)
	})
	return r
}

// Serve listens on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg ServerConfig) error {
	if cfg.Snapshot == nil {
		return fmt.Errorf("server requires a snapshot")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("explorer listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down explorer")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func serveIndex(w http.ResponseWriter, r *http.Request) {
	data, err := indexFS.ReadFile("index.html")
	if err != nil {
		http.Error(w, "explorer page not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}
