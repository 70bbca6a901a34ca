package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/michaelbrown/artoo/internal/bot"
	"github.com/michaelbrown/artoo/internal/dispatch"
	"github.com/michaelbrown/artoo/internal/sandbox"
	"github.com/michaelbrown/artoo/internal/storage"
)

// StatsSource exposes the live counters of the poll loop.
type StatsSource interface {
	Snapshot() bot.Snapshot
}

// Info describes the running bot.
type Info struct {
	Bot         string
	SandboxMode sandbox.Mode
	Timeout     time.Duration
}

// Server is the read-only HTTP status server.
type Server struct {
	info   Info
	table  *dispatch.HandlerTable
	stats  StatsSource
	ledger storage.Store
	logger *zap.Logger
	router chi.Router
	http   *http.Server
}

// New creates a new Server. ledger may be nil.
func New(info Info, table *dispatch.HandlerTable, stats StatsSource, ledger storage.Store, logger *zap.Logger) *Server {
	s := &Server{
		info:   info,
		table:  table,
		stats:  stats,
		ledger: ledger,
		logger: logger.With(zap.String("component", "server")),
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Get("/instructions", s.handleInstructions)
		r.Get("/stats", s.handleStats)
		r.Get("/handled", s.handleHandled)
	})
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler { return s.router }

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("status server starting", zap.String("addr", addr))
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errc
	return nil
}
