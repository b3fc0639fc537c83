package mcp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
)

const (
	requestTimeout  = 5 * time.Minute
	shutdownTimeout = 30 * time.Second
)

// Server hosts the command API over HTTP.
type Server struct {
	cfg        config.Interface
	logger     *zap.Logger
	handlers   *Handlers
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer wires the handlers. store and harvester are optional.
func NewServer(cfg config.Interface, logger *zap.Logger, store EndpointStore, harvester PageHarvester) *Server {
	logger = logger.Named("mcp")
	serverCfg := cfg.Server()

	limit := rate.Inf
	if serverCfg.RateLimit > 0 {
		limit = rate.Limit(serverCfg.RateLimit)
	}
	burst := serverCfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: NewHandlers(logger, cfg, store, harvester),
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer) // Catches panics
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.corsMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	s.handlers.RegisterRoutes(r, s.rateLimitMiddleware)
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Server().Addr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Command server starting", zap.String("address", addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server ListenAndServe error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Received shutdown signal, shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}
	<-errCh
	s.logger.Info("Command server stopped.")
	return nil
}

// rateLimitMiddleware rejects requests once the token bucket is empty.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.handlers.respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware refuses browser requests from origins that are not listed
// in server.allowed_origins. Requests without an Origin header, such as
// those from the CLI or curl, pass through untouched.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool)
	for _, o := range s.cfg.Server().AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Add("Vary", "Origin")
		if !allowed[origin] {
			s.logger.Warn("Rejected cross-origin request", zap.String("origin", origin), zap.String("path", r.URL.Path))
			s.handlers.respondWithError(w, http.StatusForbidden, "Origin not allowed.")
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
