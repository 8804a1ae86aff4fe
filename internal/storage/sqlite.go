package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/devops-promotions/promotions/internal/promotion"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS promotions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL DEFAULT 'UNKNOWN',
	discount INTEGER,
	customer INTEGER,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL
)`

const sqliteColumns = "id, name, type, discount, customer, start_date, end_date"

// SQLiteStorage persists promotions in a SQLite database through the pure-Go
// modernc driver.
type SQLiteStorage struct {
	path   string
	logger *zap.Logger

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStorage prepares a store for the database file at path
// (":memory:" is accepted). Nothing is opened until Init.
func NewSQLiteStorage(path string, logger *zap.Logger) *SQLiteStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStorage{path: path, logger: logger}
}

func (s *SQLiteStorage) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	s.logger.Info("Initializing database", zap.String("backend", "sqlite"), zap.String("path", s.path))

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return initFailure(fmt.Errorf("open sqlite: %w", err))
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return initFailure(err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return initFailure(err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStorage) Reset(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS promotions"); err != nil {
		return fmt.Errorf("drop promotions: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create promotions: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *SQLiteStorage) Create(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error) {
	db, err := s.handle()
	if err != nil {
		return promotion.Promotion{}, err
	}

	res, err := db.ExecContext(ctx,
		"INSERT INTO promotions (name, type, discount, customer, start_date, end_date) VALUES (?, ?, ?, ?, ?, ?)",
		sqliteArgs(p)...,
	)
	if err != nil {
		return promotion.Promotion{}, s.translate("create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return promotion.Promotion{}, fmt.Errorf("read promotion id: %w", err)
	}
	p.ID = id
	return p, nil
}

func (s *SQLiteStorage) Get(ctx context.Context, id int64) (promotion.Promotion, error) {
	db, err := s.handle()
	if err != nil {
		return promotion.Promotion{}, err
	}

	row := db.QueryRowContext(ctx, "SELECT "+sqliteColumns+" FROM promotions WHERE id = ?", id)
	p, err := scanPromotion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return promotion.Promotion{}, ErrNotFound
	}
	if err != nil {
		return promotion.Promotion{}, s.translate("get", err)
	}
	return p, nil
}

func (s *SQLiteStorage) Update(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error) {
	db, err := s.handle()
	if err != nil {
		return promotion.Promotion{}, err
	}

	args := append(sqliteArgs(p), p.ID)
	res, err := db.ExecContext(ctx,
		"UPDATE promotions SET name = ?, type = ?, discount = ?, customer = ?, start_date = ?, end_date = ? WHERE id = ?",
		args...,
	)
	if err != nil {
		return promotion.Promotion{}, s.translate("update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return promotion.Promotion{}, fmt.Errorf("read affected rows: %w", err)
	}
	if affected == 0 {
		return promotion.Promotion{}, ErrNotFound
	}
	return p, nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, id int64) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, "DELETE FROM promotions WHERE id = ?", id)
	if err != nil {
		return s.translate("delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) List(ctx context.Context, filter Filter) ([]promotion.Promotion, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	where, args := sqliteWhere(filter)
	rows, err := db.QueryContext(ctx, "SELECT "+sqliteColumns+" FROM promotions"+where+" ORDER BY id", args...)
	if err != nil {
		return nil, s.translate("list", err)
	}
	defer rows.Close()

	out := make([]promotion.Promotion, 0)
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, s.translate("list", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.translate("list", err)
	}
	return out, nil
}

func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStorage) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func (s *SQLiteStorage) translate(op string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return ErrDuplicate
	}
	s.logger.Error("sqlite operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s promotion: %w", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPromotion(row rowScanner) (promotion.Promotion, error) {
	var (
		p         promotion.Promotion
		typeName  string
		discount  sql.NullInt64
		customer  sql.NullInt64
		startDate string
		endDate   string
	)
	if err := row.Scan(&p.ID, &p.Name, &typeName, &discount, &customer, &startDate, &endDate); err != nil {
		return promotion.Promotion{}, err
	}

	t, ok := promotion.ParseType(typeName)
	if !ok {
		t = promotion.Unknown
	}
	p.Type = t

	if discount.Valid {
		d := int(discount.Int64)
		p.Discount = &d
	}
	if customer.Valid {
		c := customer.Int64
		p.Customer = &c
	}

	var err error
	if p.StartDate, err = promotion.ParseDate(startDate); err != nil {
		return promotion.Promotion{}, fmt.Errorf("decode start_date: %w", err)
	}
	if p.EndDate, err = promotion.ParseDate(endDate); err != nil {
		return promotion.Promotion{}, fmt.Errorf("decode end_date: %w", err)
	}
	return p, nil
}

func sqliteArgs(p promotion.Promotion) []any {
	var discount, customer any
	if p.Discount != nil {
		discount = *p.Discount
	}
	if p.Customer != nil {
		customer = *p.Customer
	}
	return []any{
		p.Name,
		p.Type.String(),
		discount,
		customer,
		p.StartDate.Format(promotion.DateLayout),
		p.EndDate.Format(promotion.DateLayout),
	}
}

func sqliteWhere(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Name != nil {
		clauses = append(clauses, "name = ?")
		args = append(args, *f.Name)
	}
	if f.Type != nil {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type.String())
	}
	if f.Discount != nil {
		clauses = append(clauses, "discount = ?")
		args = append(args, *f.Discount)
	}
	if f.Customer != nil {
		clauses = append(clauses, "customer = ?")
		args = append(args, *f.Customer)
	}
	if f.StartDate != nil {
		clauses = append(clauses, "start_date = ?")
		args = append(args, formatDate(*f.StartDate))
	}
	if f.EndDate != nil {
		clauses = append(clauses, "end_date = ?")
		args = append(args, formatDate(*f.EndDate))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func formatDate(t time.Time) string {
	return t.UTC().Format(promotion.DateLayout)
}
