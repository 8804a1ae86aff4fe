package application

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/devops-promotions/promotions/internal/api"
	"github.com/devops-promotions/promotions/internal/commands"
	"github.com/devops-promotions/promotions/internal/config"
	"github.com/devops-promotions/promotions/internal/storage"
)

type failingStore struct {
	*storage.MemoryStorage
	err error
}

func (s *failingStore) Init(context.Context) error {
	return s.err
}

type exitRecorder struct {
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.codes = append(e.codes, code)
}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Named("server.error"), logs
}

func newTestApp(t *testing.T, opts ...Option) (*App, *observer.ObservedLogs) {
	t.Helper()
	logger, logs := newObservedLogger()
	app, err := New(baseTestConfig(":0"), logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, logs
}

func messages(logs *observer.ObservedLogs) []string {
	out := make([]string, 0, logs.Len())
	for _, entry := range logs.All() {
		out = append(out, entry.Message)
	}
	return out
}

func TestNewBootstrapsInOrder(t *testing.T) {
	app, logs := newTestApp(t)

	assert.Equal(t, StateReady, app.State())
	require.NotNil(t, app.Server())
	assert.Equal(t, ":0", app.Server().Addr)

	got := messages(logs)
	stars := strings.Repeat("*", 70)
	banner := strings.Repeat("*", 18) + "  S E R V I C E   R U N N I N G  " + strings.Repeat("*", 19)

	bannerAt := -1
	for i, msg := range got {
		if msg == stars && i+2 < len(got) && got[i+1] == banner && got[i+2] == stars {
			bannerAt = i
			break
		}
	}
	require.NotEqual(t, -1, bannerAt, "banner not found in %v", got)
	assert.Len(t, banner, 70)
	assert.Equal(t, "Service initialized!", got[len(got)-1])
	assert.Less(t, bannerAt, len(got)-1)

	for _, entry := range logs.All() {
		assert.Equal(t, "server.error", entry.LoggerName)
		assert.Equal(t, zapcore.InfoLevel, entry.Level)
	}
}

func TestNewDatabaseFailureExitsWithStatusFour(t *testing.T) {
	logger, logs := newObservedLogger()
	exits := &exitRecorder{}
	registry := prometheus.NewRegistry()
	store := &failingStore{MemoryStorage: storage.NewMemoryStorage(), err: syscall.ECONNREFUSED}

	app, err := New(baseTestConfig(":0"), logger,
		WithStorage(store),
		WithExit(exits.exit),
		WithRegistry(registry),
	)

	require.Error(t, err)
	assert.Nil(t, app)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, []int{ExitDatabaseInit}, exits.codes)

	fatal := logs.FilterLevelExact(zapcore.FatalLevel).All()
	require.Len(t, fatal, 1)
	assert.Equal(t, "connection refused: Cannot continue", fatal[0].Message)
	assert.Equal(t, "connection", fatal[0].ContextMap()["cause"])

	assert.Zero(t, logs.FilterMessage("Service initialized!").Len())
	assert.Equal(t, 3, logs.FilterMessageSnippet("*****").Len(), "banner precedes the failure")

	metrics, err := registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range metrics {
		if mf.GetName() == "promotions_db_init_failures_total" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "expected db init failure counter")
}

func TestNewClassifiesUnknownDatabaseFailures(t *testing.T) {
	logger, logs := newObservedLogger()
	exits := &exitRecorder{}
	store := &failingStore{MemoryStorage: storage.NewMemoryStorage(), err: errors.New("disk on fire")}

	_, err := New(baseTestConfig(":0"), logger, WithStorage(store), WithExit(exits.exit))
	require.Error(t, err)

	fatal := logs.FilterLevelExact(zapcore.FatalLevel).All()
	require.Len(t, fatal, 1)
	assert.Equal(t, "disk on fire: Cannot continue", fatal[0].Message)
	assert.Equal(t, "unknown", fatal[0].ContextMap()["cause"])
	assert.Equal(t, []int{ExitDatabaseInit}, exits.codes)
}

func TestNewRejectsUnsupportedDatabase(t *testing.T) {
	logger, _ := newObservedLogger()
	exits := &exitRecorder{}
	cfg := baseTestConfig(":0")
	cfg.DatabaseURI = "mysql://localhost/promotions"

	_, err := New(cfg, logger, WithExit(exits.exit))
	assert.ErrorIs(t, err, storage.ErrUnsupportedDatabase)
	assert.Empty(t, exits.codes, "configuration errors are not database failures")
}

func TestNewRequiresFacilityLogger(t *testing.T) {
	_, err := New(baseTestConfig(":0"), nil)
	assert.Error(t, err)
}

func TestRoutesAreRegisteredOnce(t *testing.T) {
	app, _ := newTestApp(t)

	seen := map[string]bool{}
	for _, route := range app.Routes() {
		key := route.Method + " " + route.Pattern()
		assert.False(t, seen[key], "duplicate route %s", key)
		seen[key] = true
	}

	for _, want := range []string{
		"GET /", "GET /health", "GET /metrics", "GET /apidocs",
		"GET /api/promotions", "POST /api/promotions",
		"GET /api/promotions/{id}", "PUT /api/promotions/{id}",
		"PUT /api/promotions/{id}/cancel", "DELETE /api/promotions/{id}",
	} {
		assert.True(t, seen[want], "missing route %s", want)
	}

	err := api.NewHandler(app.Storage(), zap.NewNop()).Register(app.router)
	assert.ErrorIs(t, err, api.ErrDuplicateRoute)
}

func TestLoggingIsBoundToFacility(t *testing.T) {
	app, logs := newTestApp(t)

	log.Print("from the standard library")
	redirected := logs.FilterMessage("from the standard library").All()
	require.Len(t, redirected, 1)
	assert.Equal(t, "server.error", redirected[0].LoggerName)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	access := logs.FilterMessage("request completed").All()
	require.NotEmpty(t, access)
	assert.Equal(t, "server.error", access[0].LoggerName)
}

func TestStrictSlashesDisabled(t *testing.T) {
	app, _ := newTestApp(t)

	for _, path := range []string{"/api/promotions", "/api/promotions/", "/health/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestDocsServedUnderDocPath(t *testing.T) {
	app, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/apidocs", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/apidocs/", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/apidocs/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Promotions REST API Service"`)
	assert.Contains(t, rec.Body.String(), `"basePath":"/api"`)
	assert.Contains(t, rec.Body.String(), `"/promotions/{id}/cancel"`)
}

func TestMetricsTrackServiceState(t *testing.T) {
	registry := prometheus.NewRegistry()
	app, _ := newTestApp(t, WithRegistry(registry))

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "promotions_service_initialized 1")

	count, err := testutil.GatherAndCount(registry, "promotions_http_requests_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestRunCommandDBCreate(t *testing.T) {
	app, _ := newTestApp(t)
	assert.NoError(t, app.RunCommand(context.Background(), commands.DBCreate))
	assert.ErrorIs(t, app.RunCommand(context.Background(), "nope"), commands.ErrUnknownCommand)
}

func TestStartAndShutdown(t *testing.T) {
	app, _ := newTestApp(t)
	app.Server().Addr = "127.0.0.1:0"

	require.NoError(t, app.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, app.Shutdown(ctx))
}

func TestStartRequiresReadyState(t *testing.T) {
	app := &App{state: StateFailed}
	assert.Error(t, app.Start())
}

func TestNewServerAppliesConfig(t *testing.T) {
	cfg := baseTestConfig("9090")
	handler := http.NewServeMux()

	server := NewServer(cfg, handler)
	if server.Addr != ":9090" {
		t.Fatalf("expected address :9090, got %s", server.Addr)
	}
	if server.Handler != handler {
		t.Fatalf("expected handler to be applied")
	}
	if server.ReadHeaderTimeout != cfg.ReadHeaderTimeout ||
		server.WriteTimeout != cfg.WriteTimeout ||
		server.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("server timeouts do not match configuration")
	}
}

func TestCenter(t *testing.T) {
	assert.Equal(t, "**ab**", center("ab", 6, '*'))
	assert.Equal(t, "**ab*", center("ab", 5, '*'))
	assert.Equal(t, "toolong", center("toolong", 3, '*'))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "UNINITIALIZED", StateUninitialized.String())
	assert.Equal(t, "READY", StateReady.String())
	assert.Equal(t, "FAILED", StateFailed.String())
}

func baseTestConfig(port string) config.Config {
	return config.Config{
		Port:                 port,
		DatabaseURI:          "memory://",
		LogFacility:          "server.error",
		ShutdownGracePeriod:  50 * time.Millisecond,
		ReadHeaderTimeout:    20 * time.Millisecond,
		WriteTimeout:         30 * time.Millisecond,
		IdleTimeout:          40 * time.Millisecond,
		EnableRequestLogging: true,
		RateLimitRPS:         0,
		RateLimitBurst:       0,
	}
}
