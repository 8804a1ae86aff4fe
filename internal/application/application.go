package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devops-promotions/promotions/internal/api"
	"github.com/devops-promotions/promotions/internal/commands"
	"github.com/devops-promotions/promotions/internal/config"
	"github.com/devops-promotions/promotions/internal/storage"
)

// ExitDatabaseInit is the process status used when the database cannot be
// initialized. Supervisors should not respawn on it.
const ExitDatabaseInit = 4

const (
	bannerWidth = 70
	bannerText  = "  S E R V I C E   R U N N I N G  "
)

// State tracks bootstrap progress.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option customizes App construction.
type Option func(*App)

// WithExit replaces os.Exit, primarily for tests.
func WithExit(exit func(int)) Option {
	return func(a *App) {
		a.exit = exit
	}
}

// WithStorage supplies a store instead of opening one from DATABASE_URI.
func WithStorage(store storage.Storage) Option {
	return func(a *App) {
		a.store = store
	}
}

// WithRegistry supplies the Prometheus registry the app registers on.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(a *App) {
		a.registry = registry
	}
}

// App encapsulates the application dependencies and HTTP server.
type App struct {
	cfg      config.Config
	state    State
	logger   *zap.Logger
	exit     func(int)
	registry *prometheus.Registry

	store    storage.Storage
	docs     *api.Docs
	router   *api.Router
	metrics  *api.Metrics
	commands *commands.Registry
	server   *http.Server

	restoreStdLog func()
}

// New bootstraps the service: it applies configuration, registers the
// documentation layer and every collaborator, binds logging to the facility
// logger, prints the banner and initializes the database. A database
// failure is logged at fatal level and terminates the process with
// ExitDatabaseInit.
func New(cfg config.Config, facility *zap.Logger, opts ...Option) (*App, error) {
	if facility == nil {
		return nil, errors.New("facility logger is required")
	}

	a := &App{
		state:  StateUninitialized,
		logger: zap.NewNop(),
		exit:   os.Exit,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	a.cfg = cfg

	a.metrics = api.NewMetrics(a.registry)
	a.docs = api.NewDocs(api.DefaultDocsOptions(), facility)
	a.router = api.NewRouter(facility,
		api.WithPrefix(a.docs.Options().Prefix),
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithMetrics(a.metrics),
	)
	if err := a.docs.Register(a.router); err != nil {
		return nil, fmt.Errorf("register API documentation: %w", err)
	}

	if err := a.registerCollaborators(facility); err != nil {
		return nil, err
	}

	a.bindLogging(facility)

	a.logger.Info(strings.Repeat("*", bannerWidth))
	a.logger.Info(center(bannerText, bannerWidth, '*'))
	a.logger.Info(strings.Repeat("*", bannerWidth))

	if err := a.store.Init(context.Background()); err != nil {
		a.failDatabase(err)
		_ = a.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	a.logger.Info("Service initialized!")
	a.metrics.ServiceInitialized.Set(1)
	a.state = StateReady

	a.server = NewServer(cfg, a.router)
	return a, nil
}

// registerCollaborators binds the model store and adds routes, error
// handlers, CLI commands and metrics, each exactly once.
func (a *App) registerCollaborators(logger *zap.Logger) error {
	if a.store == nil {
		store, err := storage.Open(a.cfg.DatabaseURI, logger)
		if err != nil {
			return fmt.Errorf("bind models: %w", err)
		}
		a.store = store
	}

	registrars := []api.Registrar{
		api.NewServiceRoutes(a.docs.Options().Title, a.docs.Options().Version, a.docs.Options().DocPath, a.store),
		api.NewHandler(a.store, logger),
		api.ErrorHandlers{},
		a.metrics,
	}
	for _, r := range registrars {
		if err := r.Register(a.router); err != nil {
			return fmt.Errorf("register routes: %w", err)
		}
	}

	a.commands = commands.NewRegistry()
	if err := commands.Register(a.commands, a.store, logger); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}

// bindLogging routes the app's records, and anything written through the
// standard library logger, to the facility logger.
func (a *App) bindLogging(facility *zap.Logger) {
	a.logger = facility
	a.restoreStdLog = zap.RedirectStdLog(facility)
	a.logger.Info("Logging handler established")
}

func (a *App) failDatabase(err error) {
	a.state = StateFailed
	cause := storage.Classify(err)
	a.metrics.DBInitFailures.WithLabelValues(string(cause)).Inc()

	a.logger.
		WithOptions(zap.WithFatalHook(exitHook{code: ExitDatabaseInit, exit: a.exit})).
		Fatal(fmt.Sprintf("%v: Cannot continue", err), zap.String("cause", string(cause)))
}

// exitHook terminates the process with a fixed status after a fatal record
// is written.
type exitHook struct {
	code int
	exit func(int)
}

func (h exitHook) OnWrite(*zapcore.CheckedEntry, []zapcore.Field) {
	h.exit(h.code)
}

// center pads s with fill on both sides to width.
func center(s string, width int, fill rune) string {
	marg := width - len(s)
	if marg <= 0 {
		return s
	}
	left := marg/2 + (marg & width & 1)
	return strings.Repeat(string(fill), left) + s + strings.Repeat(string(fill), marg-left)
}

// State reports the bootstrap state.
func (a *App) State() State {
	return a.state
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Storage returns the bound promotion store.
func (a *App) Storage() storage.Storage {
	return a.store
}

// Routes lists every registered route.
func (a *App) Routes() []api.Route {
	return a.router.Routes()
}

// RunCommand executes a registered CLI command such as db-create.
func (a *App) RunCommand(ctx context.Context, name string) error {
	return a.commands.Run(ctx, name)
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	if a.state != StateReady {
		return fmt.Errorf("cannot start application in state %s", a.state)
	}
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Shutdown gracefully stops the HTTP server and releases the store.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	if a.server != nil {
		shutdownErr = a.server.Shutdown(ctx)
	}
	return errors.Join(shutdownErr, a.Close())
}

// Close releases the store and restores the standard library logger.
func (a *App) Close() error {
	if a.restoreStdLog != nil {
		a.restoreStdLog()
		a.restoreStdLog = nil
	}
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
