package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/devops-promotions/promotions/internal/application"
	"github.com/devops-promotions/promotions/internal/commands"
	"github.com/devops-promotions/promotions/internal/config"
	"github.com/devops-promotions/promotions/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	cli := commands.NewCLI("promotions", "Promotions REST API Service - ecommerce promotions management")
	command := kingpin.MustParse(cli.Parse(os.Args[1:]))

	cfg, err := config.Load(cli.Overrides())
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(logging.Options{
		Facility: cfg.LogFacility,
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		_ = app.Close()
	}()

	if command != commands.Serve {
		if err := app.RunCommand(context.Background(), command); err != nil {
			logger.Error("command failed", zap.String("command", command), zap.Error(err))
			_ = app.Close()
			_ = logger.Sync()
			os.Exit(1)
		}
		return
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app, cfg.ShutdownGracePeriod, logger)
}

// stopper is the part of application.App that shutdown drives.
type stopper interface {
	Shutdown(ctx context.Context) error
	Server() *http.Server
}

// shutdown blocks until SIGINT or SIGTERM, then stops the app within
// timeout. Connections still open at the deadline are closed.
func shutdown(app stopper, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down server", zap.Stringer("signal", sig))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if server := app.Server(); server != nil && errors.Is(err, context.DeadlineExceeded) {
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("forced close failed", zap.Error(closeErr))
			}
		}
	}
}
