package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	osSignal "os/signal"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/devops-promotions/promotions/internal/application"
	"github.com/devops-promotions/promotions/internal/config"
	"github.com/devops-promotions/promotions/internal/storage"
)

type closeTracker struct {
	*storage.MemoryStorage
	closed chan struct{}
}

func (s *closeTracker) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return s.MemoryStorage.Close()
}

type stalledApp struct {
	server *http.Server
}

func (a stalledApp) Shutdown(context.Context) error {
	return context.DeadlineExceeded
}

func (a stalledApp) Server() *http.Server {
	return a.server
}

func sendOnNotify(t *testing.T, sig os.Signal) {
	t.Helper()
	t.Cleanup(func() {
		signalNotify = osSignal.Notify
	})
	signalNotify = func(ch chan<- os.Signal, _ ...os.Signal) {
		go func() {
			ch <- sig
		}()
	}
}

func TestShutdownStopsServerAndClosesStore(t *testing.T) {
	sendOnNotify(t, syscall.SIGTERM)

	store := &closeTracker{MemoryStorage: storage.NewMemoryStorage(), closed: make(chan struct{})}
	cfg := config.Config{
		Port:                "127.0.0.1:0",
		DatabaseURI:         "memory://",
		LogFacility:         "server.error",
		ShutdownGracePeriod: time.Second,
	}
	app, err := application.New(cfg, zaptest.NewLogger(t), application.WithStorage(store))
	if err != nil {
		t.Fatalf("application.New returned error: %v", err)
	}

	stopped := make(chan struct{}, 1)
	app.Server().RegisterOnShutdown(func() {
		stopped <- struct{}{}
	})
	if err := app.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	shutdown(app, cfg.ShutdownGracePeriod, zaptest.NewLogger(t))

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("expected server shutdown callback to execute")
	}
	select {
	case <-store.closed:
	default:
		t.Fatalf("expected store to be closed")
	}
}

func TestShutdownForcesCloseAfterDeadline(t *testing.T) {
	sendOnNotify(t, os.Interrupt)

	server := &http.Server{}
	shutdown(stalledApp{server: server}, time.Millisecond, zaptest.NewLogger(t))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("expected closed server, got %v", err)
	}
}
