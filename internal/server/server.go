// Package server exposes the webhook and health endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eteu-technologies/hook-deployer/internal/config"
	"github.com/eteu-technologies/hook-deployer/internal/signature"
)

const (
	DefaultMaxBodySize     = 1 << 20
	DefaultShutdownTimeout = 30 * time.Second
)

// Deployer runs the deployment configured for an application.
type Deployer interface {
	Run(ctx context.Context, app string, d config.Deployment) error
}

type Options struct {
	Listen      string
	Secret      string
	MaxBodySize int64
	// ShutdownTimeout bounds how long in-flight deployments may keep the
	// server alive after shutdown starts.
	ShutdownTimeout time.Duration
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type Server struct {
	opts     Options
	apps     *config.Config
	deployer Deployer
	logger   *zap.Logger
	server   *http.Server
}

func New(opts Options, apps *config.Config, deployer Deployer, logger *zap.Logger) *Server {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = zap.L()
	}

	return &Server{
		opts:     opts,
		apps:     apps,
		deployer: deployer,
		logger:   logger.Named("http"),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", zap.String("listen", s.opts.Listen))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post("/webhook/{app}", s.handleWebhook)
	r.Get("/health", s.handleHealth)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// loggingMiddleware logs every request without its body.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	logger := s.logger.With(zap.String("app", app), zap.String("request_id", middleware.GetReqID(r.Context())))

	deployment, ok := s.apps.Lookup(app)
	if !ok {
		respondText(w, http.StatusNotFound, "Deployment not configured")
		return
	}

	values := r.Header.Values(signature.Header)
	if len(values) != 1 || values[0] == "" {
		logger.Warn("webhook signature missing", zap.Int("values", len(values)))
		respondText(w, http.StatusUnauthorized, "No signature")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.opts.MaxBodySize+1))
	if err != nil {
		respondText(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	if int64(len(body)) > s.opts.MaxBodySize {
		respondText(w, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}

	if !signature.Verify(values[0], body, s.opts.Secret) {
		logger.Warn("webhook signature verification failed")
		respondText(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	// The deployment outlives a caller that hangs up.
	ctx := context.WithoutCancel(r.Context())
	if err := s.deployer.Run(ctx, app, deployment); err != nil {
		logger.Error("deployment error", zap.Error(err))
		respondText(w, http.StatusInternalServerError, "Deployment failed")
		return
	}

	respondText(w, http.StatusOK, "Deployed successfully")
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
