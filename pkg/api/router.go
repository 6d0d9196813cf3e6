package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/internal/telemetry"
	"github.com/marmos91/dittobin/pkg/api/handlers"
	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/gc"
)

// Dependencies are the components the API serves.
type Dependencies struct {
	// Store is required.
	Store *blob.Store

	// Index maps artifact paths to digests. Artifact routes are only
	// mounted when it is set.
	Index gc.Indexer

	// Collector backs the /gc routes. Optional.
	Collector *gc.Collector

	// Scheduler, when set, receives asynchronous POST /gc?async=true
	// requests.
	Scheduler *gc.Scheduler

	// Metrics is optional.
	Metrics Metrics
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health, GET /health/ready
//   - GET /blobs, PUT|GET|HEAD /blobs/{id}, GET /blobs/{id}/info, POST /blobs/{id}/reset
//   - PUT|GET|HEAD|DELETE /artifacts/*
//   - POST /gc, GET /gc/status, GET /gc/last
func NewRouter(config APIConfig, deps Dependencies) http.Handler {
	config.ApplyDefaults()

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(instrument(deps.Metrics))
	r.Use(middleware.Recoverer)

	properties := gc.DefaultProperties()
	if deps.Collector != nil {
		properties = deps.Collector.Properties()
	}

	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Collector)
	blobHandler := handlers.NewBlobHandler(deps.Store)

	// JSON endpoints share a request timeout; streaming ones rely on the
	// server read/write timeouts instead.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(config.RequestTimeout))

		r.Route("/health", func(r chi.Router) {
			r.Get("/", healthHandler.Liveness)
			r.Get("/ready", healthHandler.Readiness)
		})

		r.Get("/blobs", blobHandler.List)
		r.Get("/blobs/{id}/info", blobHandler.Info)
		r.Post("/blobs/{id}/reset", blobHandler.Reset)
	})

	r.Put("/blobs/{id}", blobHandler.Put)
	r.Get("/blobs/{id}", blobHandler.Get)
	r.Head("/blobs/{id}", blobHandler.Get)

	if deps.Index != nil {
		artifactHandler := handlers.NewArtifactHandler(deps.Store, deps.Index, properties, config.SpoolDir)
		r.Route("/artifacts", func(r chi.Router) {
			r.Put("/*", artifactHandler.Put)
			r.Get("/*", artifactHandler.Get)
			r.Head("/*", artifactHandler.Get)
			r.Delete("/*", artifactHandler.Delete)
		})
	}

	if deps.Collector != nil {
		gcHandler := handlers.NewGCHandler(deps.Collector, deps.Scheduler)
		r.Route("/gc", func(r chi.Router) {
			r.Post("/", gcHandler.Run)
			r.With(middleware.Timeout(config.RequestTimeout)).Get("/status", gcHandler.Status)
			r.With(middleware.Timeout(config.RequestTimeout)).Get("/last", gcHandler.Last)
		})
	}

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger binds a LogContext to the request and logs its completion.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, route, status, bytes, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		lc := logger.NewLogContext(r.RemoteAddr).WithRequest(requestID, r.Method, r.URL.Path)
		ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanHTTPRequest)
		defer span.End()
		if traceID := telemetry.TraceID(ctx); traceID != "" {
			lc = lc.WithTrace(traceID, telemetry.SpanID(ctx))
		}
		ctx = logger.WithContext(ctx, lc)
		r = r.WithContext(ctx)

		logger.DebugCtx(ctx, "API request started", "remote_addr", r.RemoteAddr)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		span.SetAttributes(
			telemetry.HTTPMethod(r.Method),
			telemetry.HTTPRoute(route),
			telemetry.HTTPStatus(ww.Status()),
			telemetry.ClientAddr(r.RemoteAddr),
		)

		logger.InfoCtx(ctx, "API request completed",
			"path", r.URL.Path,
			logger.Status(ww.Status()),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(lc.DurationMs()),
		)
	})
}

// instrument reports every request to m. A nil m adds no middleware cost
// beyond the call itself.
func instrument(m Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RequestStarted()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			m.ObserveRequest(r.Method, routePattern(r), ww.Status(), time.Since(start), int64(ww.BytesWritten()))
		})
	}
}

// routePattern returns the matched route pattern once routing is done.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
