package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDuplicateRoute is returned when a method and path are registered twice.
var ErrDuplicateRoute = errors.New("route already registered")

// Registrar is a collaborator that adds its routes to a Router.
type Registrar interface {
	Register(router *Router) error
}

// Route describes one endpoint. Namespaced routes live under the router
// prefix and appear in the API documentation; root routes do neither.
type Route struct {
	Method    string
	Path      string
	Namespace string
	Summary   string
	// Body marks endpoints that consume a JSON promotion document.
	Body bool
	// Query lists documented query-string parameters.
	Query     []string
	Responses map[int]string

	pattern string
}

// Pattern returns the full ServeMux path of the route.
func (r Route) Pattern() string {
	return r.pattern
}

// RouterOption configures the behaviour of NewRouter.
type RouterOption func(*routerConfig)

// WithLogging controls whether access logs are emitted.
func WithLogging(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter overrides the default request rate limiter (primarily for tests).
func WithRateLimiter(limiter rateLimiter) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithRateLimit configures the token bucket; a zero rate or burst disables limiting.
func WithRateLimit(rps float64, burst int) RouterOption {
	return func(cfg *routerConfig) {
		if rps <= 0 || burst <= 0 {
			cfg.rateLimiter = nil
			return
		}
		cfg.rateLimiter = newTokenBucketLimiter(rps, burst)
	}
}

// WithPrefix sets the URL prefix of namespaced routes.
func WithPrefix(prefix string) RouterOption {
	return func(cfg *routerConfig) {
		cfg.prefix = "/" + strings.Trim(prefix, "/")
		if cfg.prefix == "/" {
			cfg.prefix = ""
		}
	}
}

// WithMetrics records request counts and latencies per route.
func WithMetrics(metrics *Metrics) RouterOption {
	return func(cfg *routerConfig) {
		cfg.metrics = metrics
	}
}

type routerConfig struct {
	enableLogging bool
	logger        *zap.Logger
	rateLimiter   rateLimiter
	prefix        string
	metrics       *Metrics
}

// Router wraps http.ServeMux with a route registry, a URL prefix for
// namespaced routes and non-strict trailing slashes.
type Router struct {
	cfg    routerConfig
	mux    *http.ServeMux
	root   http.Handler
	routes []Route
	seen   map[string]struct{}
	mounts []string

	notFound         http.Handler
	methodNotAllowed http.Handler
}

// NewRouter creates an HTTP router with standard middleware.
func NewRouter(logger *zap.Logger, opts ...RouterOption) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := routerConfig{
		enableLogging: true,
		logger:        logger,
		rateLimiter:   newTokenBucketLimiter(25, 50),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Router{
		cfg:  cfg,
		mux:  http.NewServeMux(),
		seen: make(map[string]struct{}),
	}

	var root http.Handler = http.HandlerFunc(r.dispatch)
	root = corsMiddleware(root)
	root = recoveryMiddleware(cfg.logger, root)
	if cfg.enableLogging {
		root = loggingMiddleware(cfg.logger, root)
	}
	root = rateLimitMiddleware(cfg.rateLimiter, root)
	root = requestIDMiddleware(root)
	r.root = root

	return r
}

// Prefix returns the URL prefix applied to namespaced routes.
func (r *Router) Prefix() string {
	return r.cfg.prefix
}

var pathParam = regexp.MustCompile(`\{[^}]*\}`)

// Handle registers a route. Registering the same method and path twice
// returns ErrDuplicateRoute.
func (r *Router) Handle(route Route, handler http.HandlerFunc) error {
	route.Method = strings.ToUpper(strings.TrimSpace(route.Method))
	if route.Method == "" {
		return fmt.Errorf("route %q has no method", route.Path)
	}
	if !strings.HasPrefix(route.Path, "/") {
		return fmt.Errorf("route path %q must start with /", route.Path)
	}

	full := route.Path
	if route.Namespace != "" {
		full = r.cfg.prefix + route.Path
	}
	if len(full) > 1 {
		full = strings.TrimRight(full, "/")
	}
	route.pattern = full

	key := route.Method + " " + pathParam.ReplaceAllString(full, "{}")
	if _, ok := r.seen[key]; ok {
		return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, route.Method, full)
	}
	r.seen[key] = struct{}{}

	muxPath := full
	if muxPath == "/" {
		muxPath = "/{$}"
	}
	r.mux.Handle(route.Method+" "+muxPath, handler)
	r.routes = append(r.routes, route)
	return nil
}

// Mount serves a whole subtree rooted at path. Trailing slashes inside a
// mounted subtree are left untouched.
func (r *Router) Mount(path string, handler http.Handler) error {
	path = "/" + strings.Trim(path, "/")
	key := "MOUNT " + path
	if _, ok := r.seen[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, path)
	}
	r.seen[key] = struct{}{}

	r.mux.Handle(path+"/", handler)
	r.mounts = append(r.mounts, path)
	return nil
}

// NotFound sets the handler for unmatched paths.
func (r *Router) NotFound(handler http.Handler) {
	r.notFound = handler
}

// MethodNotAllowed sets the handler for known paths requested with an
// unsupported method.
func (r *Router) MethodNotAllowed(handler http.Handler) {
	r.methodNotAllowed = handler
}

// Routes returns a copy of the registered routes in registration order.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.root.ServeHTTP(w, req)
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	if path := req.URL.Path; len(path) > 1 && strings.HasSuffix(path, "/") && !r.mounted(path) {
		req = req.Clone(req.Context())
		req.URL.Path = strings.TrimRight(path, "/")
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
		req.URL.RawPath = ""
	}

	start := time.Now()
	rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

	handler, pattern := r.mux.Handler(req)
	if pattern == "" {
		r.fallback(handler, rec, req)
		r.observe(req.Method, "unmatched", rec.status, start)
		return
	}

	r.mux.ServeHTTP(rec, req)
	r.observe(req.Method, pattern, rec.status, start)
}

func (r *Router) mounted(path string) bool {
	for _, m := range r.mounts {
		if path == m || strings.HasPrefix(path, m+"/") {
			return true
		}
	}
	return false
}

// fallback runs the mux's own 404/405 handler and swaps its plain text body
// for the configured JSON handlers.
func (r *Router) fallback(handler http.Handler, w http.ResponseWriter, req *http.Request) {
	capture := &statusCapture{header: w.Header()}
	handler.ServeHTTP(capture, req)

	switch capture.status {
	case http.StatusNotFound:
		if r.notFound != nil {
			r.notFound.ServeHTTP(w, req)
			return
		}
	case http.StatusMethodNotAllowed:
		if r.methodNotAllowed != nil {
			r.methodNotAllowed.ServeHTTP(w, req)
			return
		}
	}

	status := capture.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(capture.body.Bytes())
}

func (r *Router) observe(method, pattern string, status int, start time.Time) {
	if r.cfg.metrics == nil {
		return
	}
	r.cfg.metrics.observe(method, pattern, status, time.Since(start))
}

type statusCapture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *statusCapture) Header() http.Header {
	return c.header
}

func (c *statusCapture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *statusCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Requested-With")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID,Location")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		requestID := requestIDFromContext(r.Context())
		logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
			zap.String("request_id", requestID),
		)
	})
}

func recoveryMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered", zap.Any("error", rec), zap.String("request_id", requestIDFromContext(r.Context())))
				writeError(w, http.StatusInternalServerError, "unexpected server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := contextWithRequestID(r.Context(), requestID)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDContextKey contextKey = "requestID"

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
