package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/better-wallet/marketplace/internal/config"
	"github.com/better-wallet/marketplace/internal/metrics"
	"github.com/better-wallet/marketplace/internal/middleware"
	apperrors "github.com/better-wallet/marketplace/pkg/errors"
)

const healthCheckTimeout = 2 * time.Second

// Server represents the HTTP server
type Server struct {
	config      *config.Config
	users       UserStore
	uploads     Uploader
	db          Pinger
	auth        *middleware.AuthMiddleware
	rateLimiter *middleware.RateLimiter
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	nonces      *nonceStore
	httpServer  *http.Server
	now         func() time.Time
}

// NewServer creates a new API server. m and gatherer back the /metrics
// endpoint and are usually the same registry.
func NewServer(
	cfg *config.Config,
	users UserStore,
	uploads Uploader,
	db Pinger,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
) *Server {
	return &Server{
		config:      cfg,
		users:       users,
		uploads:     uploads,
		db:          db,
		auth:        middleware.NewAuthMiddleware(cfg.JWTSecret, users),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitEnabled),
		metrics:     m,
		gatherer:    gatherer,
		nonces:      newNonceStore(),
		now:         time.Now,
	}
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Operational endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Wallet login: challenge -> signature -> token
	mux.HandleFunc("GET /api/users/wallet-challenge", s.handleWalletChallenge)
	mux.Handle("POST /api/users/wallet-login",
		middleware.VerifyWalletSignature(http.HandlerFunc(s.handleWalletLogin)))
	mux.Handle("GET /api/users/me",
		s.auth.Authenticate(http.HandlerFunc(s.handleMe)))

	// Image uploads
	mux.Handle("POST /api/upload/presign",
		s.auth.Authenticate(http.HandlerFunc(s.handlePresign)))
	mux.Handle("DELETE /api/upload/{key...}",
		s.auth.Authenticate(http.HandlerFunc(s.handleDeleteUpload)))

	// Catalog and orders are served elsewhere
	notImplemented := middleware.AttachWalletAddress(http.HandlerFunc(s.handleNotImplemented))
	for _, prefix := range []string{"/api/products", "/api/orders"} {
		mux.Handle(prefix, notImplemented)
		mux.Handle(prefix+"/", notImplemented)
	}

	// Chain: RequestID -> Logging -> CORS -> RateLimit -> LimitBody -> Routes
	// Logging must see the same *http.Request the mux annotates with its pattern.
	var h http.Handler = mux
	h = middleware.LimitBody(h)
	h = s.rateLimiter.Limit(h)
	h = middleware.CORS(s.config.ClientURL)(h)
	h = middleware.Logging(s.metrics)(h)
	h = middleware.RequestID(h)
	return h
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting server", "port", s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotImplemented(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, apperrors.NewWithDetail(
		apperrors.ErrCodeNotImplemented,
		"Not implemented",
		r.Method+" "+r.URL.Path+" is not served by this backend",
		http.StatusNotImplemented,
	))
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(err)
}
