// Package server exposes completed clustering runs over a read-only HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drkrodriguez/ISSS626-GAA/internal/store"
)

// Options configure the HTTP listener.
type Options struct {
	Addr           string
	AllowedOrigins []string
}

// Server serves stored runs and their GeoJSON renderings.
type Server struct {
	st  store.Store
	srv *http.Server
	log *zap.Logger
}

// New builds the route tree and wraps it in an http.Server.
func New(st store.Store, opts Options) *Server {
	s := &Server{
		st:  st,
		log: zap.L().With(zap.String("component", "server")),
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Route("/runs", func(rr chi.Router) {
			rr.Get("/", s.handleListRuns)
			rr.Route("/{runID}", func(item chi.Router) {
				item.Get("/", s.handleGetRun)
				item.Get("/geojson", s.handleRunGeoJSON)
			})
		})
	})

	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info("listening", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return eris.Wrap(err, "server: listen")
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	return eris.Wrap(s.srv.Shutdown(ctx), "server: shutdown")
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
