// Package server provides the minimal HTTP admin/status surface (spec §2:
// "Thin handlers delegating to A–J") plus the WebSocket upgrade mount,
// built on the teacher's chi+cors stack (internal/server/server.go).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/marketwatch/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// SchedulerStatus is the subset of scheduler.Scheduler this server depends
// on, kept as an interface so the HTTP layer doesn't pull in the
// scheduler's cron/uuid/gopsutil dependency chain.
type SchedulerStatus interface {
	Status() map[string]any
	TriggerManual(ctx context.Context, name string) error
	Mode() config.StartupMode
}

// Server is the thin admin/status HTTP surface (SPEC_FULL.md's addition
// to the teacher's component set).
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	scheduler SchedulerStatus
	wsHandler http.Handler
}

// Config configures New.
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Scheduler SchedulerStatus
	WSHandler http.Handler
}

// New builds a Server with routes installed but not yet listening.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		scheduler: cfg.Scheduler,
		wsHandler: cfg.WSHandler,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/admin", func(r chi.Router) {
		r.Get("/scheduler", s.handleSchedulerStatus)
		r.Post("/jobs/{name}/trigger", s.handleTriggerJob)
	})

	if s.wsHandler != nil {
		s.router.Handle("/ws", s.wsHandler)
	}
}

// Start begins serving and blocks until the context is cancelled or
// ListenAndServe returns a non-graceful error.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// loggingMiddleware logs HTTP requests (teacher's internal/server/server.go
// loggingMiddleware pattern).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
