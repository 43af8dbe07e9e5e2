// Package api is the HTTP boundary of the gateway.
//
// It provides:
//   - Server: the chi router with request IDs, real-IP resolution, panic
//     recovery, CORS, per-IP rate limiting, request logging, metrics and
//     OpenTelemetry instrumentation, plus liveness, readiness and drain
//     endpoints.
//   - Handlers for the identity and feedback services, mounted both at the
//     root and under the legacy /api prefix.
//   - A uniform JSON envelope and an explicit error-kind to status table.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/pilacorp/go-did-gateway/metrics"
)

// LegacyPrefix is the path prefix the routes are also served under.
const LegacyPrefix = "/api"

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// RouteRegistrar defines the interface for components that register routes
// with the server's router.
type RouteRegistrar interface {
	// RegisterRoutes registers routes with the provided router
	RegisterRoutes(r chi.Router)
}

// ServerConfig contains all configuration parameters for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the address and port the HTTP server will listen on.
	ListenAddr string

	// MetricsAddr is the address and port for the metrics server.
	// If empty, metrics server will not be started.
	MetricsAddr string

	// EnablePprof enables the pprof debugging API when true.
	EnablePprof bool

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// Metrics collects request and submission metrics. May be nil.
	Metrics *metrics.Metrics

	// DrainDuration is the time to wait after marking server not ready
	// before shutting down, allowing load balancers to detect the change.
	DrainDuration time.Duration

	// GracefulShutdownDuration is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	GracefulShutdownDuration time.Duration

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. There is no write timeout: feedback submission
	// holds the response until the transaction is confirmed.
	ReadTimeout time.Duration

	// AllowedOrigins lists the CORS origins; empty allows any origin.
	AllowedOrigins []string

	// RateLimitRPS and RateLimitBurst configure the per-IP limiter.
	// A zero RPS disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server is the gateway HTTP server.
type Server struct {
	cfg     *ServerConfig
	isReady atomic.Bool
	log     *slog.Logger
	limiter *MapLimiter

	handler    http.Handler
	srv        *http.Server
	metricsSrv *metrics.MetricsServer
}

// NewServer creates a Server with the given route registrars.
func NewServer(cfg *ServerConfig, routeRegistrars ...RouteRegistrar) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	srv := &Server{
		cfg:     cfg,
		log:     log,
		limiter: NewMapLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute),
	}

	if cfg.MetricsAddr != "" && cfg.Metrics != nil {
		srv.metricsSrv = metrics.NewServer(cfg.MetricsAddr, cfg.Metrics)
	}

	srv.handler = otelhttp.NewHandler(srv.createRouter(routeRegistrars), "did-gateway")
	srv.srv = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     srv.handler,
		ReadTimeout: cfg.ReadTimeout,
	}

	// Server is ready by default
	srv.isReady.Store(true)

	return srv
}

// Handler returns the root HTTP handler.
func (srv *Server) Handler() http.Handler {
	return srv.handler
}

// createRouter creates and configures the HTTP router with middleware and standard endpoints.
func (srv *Server) createRouter(routeRegistrars []RouteRegistrar) http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: srv.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	mux.Use(srv.observe)

	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound, "not_found", "route not found")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	// Component routes, rate limited and logged.
	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)
		r.Use(srv.rateLimit)

		r.Get("/", handleRoot)
		for _, registrar := range routeRegistrars {
			registrar.RegisterRoutes(r)
		}
		r.Route(LegacyPrefix, func(r chi.Router) {
			for _, registrar := range routeRegistrars {
				registrar.RegisterRoutes(r)
			}
		})
	})

	// Health and diagnostic endpoints
	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/drain", srv.handleDrain)
	mux.With(srv.httpLogger).Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}

	return mux
}

func (srv *Server) allowedOrigins() []string {
	if len(srv.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return srv.cfg.AllowedOrigins
}

// httpLogger is a middleware that logs HTTP requests using structured logging.
func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

// observe records request count and latency per route pattern.
func (srv *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		srv.cfg.Metrics.ObserveRequest(route, r.Method, status, time.Since(start))
	})
}

// rateLimit rejects clients exceeding their per-IP token bucket.
func (srv *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !srv.limiter.Allow(clientKey(r), time.Now()) {
			w.Header().Set("Retry-After", "1")
			writeStatus(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthStatus struct {
	Status string `json:"status"`
}

// handleLivenessCheck provides a simple health check to verify the server is running.
func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, healthStatus{Status: "alive"})
}

// handleReadinessCheck verifies if the server is ready to accept requests.
func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not_ready", "not ready")
		return
	}
	writeData(w, http.StatusOK, healthStatus{Status: "ready"})
}

// handleDrain marks the server as not ready.
func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		writeData(w, http.StatusOK, healthStatus{Status: "already draining"})
		return
	}

	srv.log.Info("Server marked as not ready")
	writeData(w, http.StatusOK, healthStatus{Status: "draining"})
}

// handleUndrain marks the server as ready to accept new requests.
func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		writeData(w, http.StatusOK, healthStatus{Status: "already ready"})
		return
	}

	srv.log.Info("Server marked as ready")
	writeData(w, http.StatusOK, healthStatus{Status: "ready"})
}

// Run serves HTTP and metrics until ctx is cancelled, then drains and shuts
// both servers down gracefully.
func (srv *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if srv.metricsSrv != nil {
		g.Go(func() error {
			srv.log.Info("Starting metrics server", "metricsAddress", srv.cfg.MetricsAddr)
			if err := srv.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		srv.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown marks the server not ready, waits for the drain period and
// gracefully stops the HTTP and metrics servers.
func (srv *Server) shutdown() {
	if srv.isReady.Swap(false) && srv.cfg.DrainDuration > 0 {
		srv.log.Info("Draining", "duration", srv.cfg.DrainDuration)
		time.Sleep(srv.cfg.DrainDuration)
	}

	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}

	if srv.metricsSrv != nil {
		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful metrics server shutdown failed", "err", err)
		} else {
			srv.log.Info("Metrics server gracefully stopped")
		}
	}
}
