package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vantagehq/vantage/pkg/config"
	"github.com/vantagehq/vantage/pkg/log"
	"github.com/vantagehq/vantage/pkg/metrics"
	"github.com/vantagehq/vantage/pkg/storage"
)

// shutdownTimeout bounds how long in-flight requests may drain after a
// shutdown signal
const shutdownTimeout = 30 * time.Second

// Server is one worker's HTTP front end
type Server struct {
	cfg      *config.Config
	repo     storage.Repository
	strategy *searchStrategy
	ingester Ingester
	router   chi.Router
	logger   zerolog.Logger
	started  time.Time
}

// NewServer wires the serving shell: router, middleware chain, and routes.
// Collaborators arrive as constructor parameters so tests can substitute
// stubs.
func NewServer(cfg *config.Config, repo storage.Repository, ingester Ingester) *Server {
	s := &Server{
		cfg:      cfg,
		repo:     repo,
		strategy: &searchStrategy{repo: repo},
		ingester: ingester,
		logger:   log.WithComponent("api"),
		started:  time.Now(),
	}

	r := chi.NewRouter()
	r.Use(timing)
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(chimw.Compress(5))
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/businesses/search", s.handleSearch)
		r.Get("/businesses/{abn}", s.handleGetBusiness)
		r.Post("/ingest", s.handleIngest)
	})
	r.Handle("/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs the HTTP server on the given listener until ctx is cancelled,
// then drains in-flight requests before returning
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info().Msg("Draining in-flight requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
