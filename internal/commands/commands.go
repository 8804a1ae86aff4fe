// Package commands defines the service command line: the kingpin flags and
// commands, and the maintenance commands that run against a bootstrapped
// store instead of serving HTTP.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/devops-promotions/promotions/internal/storage"
)

const (
	// Serve runs the HTTP service. It is the default command.
	Serve = "serve"
	// DBCreate drops and recreates the promotions schema.
	DBCreate = "db-create"
)

var (
	// ErrUnknownCommand is returned by Run for names nothing registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrDuplicateCommand is returned when a name is registered twice.
	ErrDuplicateCommand = errors.New("command already registered")
)

// Runner executes a command.
type Runner func(ctx context.Context) error

// Registry maps command names to runners.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Add registers fn under name.
func (r *Registry) Add(name string, fn Runner) error {
	if _, ok := r.runners[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	r.runners[name] = fn
	return nil
}

// Run executes the command registered under name.
func (r *Registry) Run(ctx context.Context, name string) error {
	fn, ok := r.runners[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return fn(ctx)
}

// Names lists registered commands alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds the maintenance commands bound to store.
func Register(reg *Registry, store storage.Storage, logger *zap.Logger) error {
	return reg.Add(DBCreate, func(ctx context.Context) error {
		logger.Info("Recreating database tables")
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("recreate schema: %w", err)
		}
		logger.Info("Database tables created")
		return nil
	})
}
