package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devops-promotions/promotions/internal/promotion"
)

var (
	// ErrNotFound indicates no promotion exists with the requested id.
	ErrNotFound = errors.New("promotion not found")
	// ErrDuplicate indicates a promotion with the same name already exists.
	ErrDuplicate = errors.New("promotion with this name already exists")
	// ErrNotInitialized is returned when the store is used before Init.
	ErrNotInitialized = errors.New("storage is not initialized")
	// ErrUnsupportedDatabase indicates a DATABASE_URI scheme with no backend.
	ErrUnsupportedDatabase = errors.New("unsupported database uri")
)

// Storage persists promotions.
type Storage interface {
	// Init connects to the backend and creates the schema if absent.
	Init(ctx context.Context) error
	// Reset drops and recreates the schema.
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Create(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error)
	Get(ctx context.Context, id int64) (promotion.Promotion, error)
	Update(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter Filter) ([]promotion.Promotion, error)
	Close() error
}

// Filter narrows List results. Nil fields match everything; set fields must
// all match.
type Filter struct {
	Name      *string
	Type      *promotion.Type
	Discount  *int
	Customer  *int64
	StartDate *time.Time
	EndDate   *time.Time
}

// Match reports whether p satisfies every set field of the filter.
func (f Filter) Match(p promotion.Promotion) bool {
	if f.Name != nil && p.Name != *f.Name {
		return false
	}
	if f.Type != nil && p.Type != *f.Type {
		return false
	}
	if f.Discount != nil && (p.Discount == nil || *p.Discount != *f.Discount) {
		return false
	}
	if f.Customer != nil && (p.Customer == nil || *p.Customer != *f.Customer) {
		return false
	}
	if f.StartDate != nil && !p.StartDate.Equal(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && !p.EndDate.Equal(*f.EndDate) {
		return false
	}
	return true
}

// Open selects a backend from the DATABASE_URI scheme. The returned store is
// not connected until Init is called.
func Open(uri string, logger *zap.Logger) (Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scheme, rest, ok := strings.Cut(strings.TrimSpace(uri), "://")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDatabase, uri)
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return NewPostgresStorage(uri, logger), nil
	case "sqlite":
		if rest == "" {
			return nil, fmt.Errorf("%w: sqlite uri needs a path", ErrUnsupportedDatabase)
		}
		return NewSQLiteStorage(rest, logger), nil
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedDatabase, scheme)
	}
}
