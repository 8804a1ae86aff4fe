package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/devops-promotions/promotions/internal/promotion"
)

const postgresConnectTimeout = 5 * time.Second

type promotionModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;type:varchar(63);not null;uniqueIndex"`
	Type      string    `gorm:"column:type;type:varchar(32);not null;default:UNKNOWN"`
	Discount  *int      `gorm:"column:discount"`
	Customer  *int64    `gorm:"column:customer"`
	StartDate time.Time `gorm:"column:start_date;type:date;not null"`
	EndDate   time.Time `gorm:"column:end_date;type:date;not null"`
}

func (promotionModel) TableName() string {
	return "promotions"
}

func promotionModelFromEntity(p promotion.Promotion) promotionModel {
	return promotionModel{
		ID:        p.ID,
		Name:      p.Name,
		Type:      p.Type.String(),
		Discount:  p.Discount,
		Customer:  p.Customer,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
	}
}

func (m promotionModel) toEntity() promotion.Promotion {
	t, ok := promotion.ParseType(m.Type)
	if !ok {
		t = promotion.Unknown
	}
	return promotion.Promotion{
		ID:        m.ID,
		Name:      m.Name,
		Type:      t,
		Discount:  m.Discount,
		Customer:  m.Customer,
		StartDate: dateOnly(m.StartDate),
		EndDate:   dateOnly(m.EndDate),
	}
}

// gormConfig leaves dialling to Init so the first connection attempt is
// bounded by postgresConnectTimeout and the caller's context.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
		DisableAutomaticPing: true,
	}
}

// PostgresStorage persists promotions in PostgreSQL through gorm and pgx.
type PostgresStorage struct {
	dsn    string
	logger *zap.Logger

	mu sync.RWMutex
	db *gorm.DB
}

// NewPostgresStorage prepares a store for dsn. Nothing is dialled until Init.
func NewPostgresStorage(dsn string, logger *zap.Logger) *PostgresStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStorage{dsn: dsn, logger: logger}
}

func (s *PostgresStorage) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	s.logger.Info("Initializing database", zap.String("backend", "postgres"))

	db, err := gorm.Open(postgres.Open(s.dsn), gormConfig())
	if err != nil {
		return initFailure(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return initFailure(fmt.Errorf("resolve postgres sql db handle: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, postgresConnectTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return initFailure(err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&promotionModel{}); err != nil {
		_ = sqlDB.Close()
		return initFailure(err)
	}

	s.db = db
	return nil
}

func (s *PostgresStorage) Reset(ctx context.Context) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if err := db.Migrator().DropTable(&promotionModel{}); err != nil {
		return fmt.Errorf("drop promotions: %w", err)
	}
	if err := db.AutoMigrate(&promotionModel{}); err != nil {
		return fmt.Errorf("create promotions: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStorage) Create(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return promotion.Promotion{}, err
	}

	row := promotionModelFromEntity(p)
	row.ID = 0
	if err := db.Create(&row).Error; err != nil {
		return promotion.Promotion{}, s.translate("create", err)
	}
	return row.toEntity(), nil
}

func (s *PostgresStorage) Get(ctx context.Context, id int64) (promotion.Promotion, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return promotion.Promotion{}, err
	}

	var row promotionModel
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return promotion.Promotion{}, ErrNotFound
		}
		return promotion.Promotion{}, s.translate("get", err)
	}
	return row.toEntity(), nil
}

func (s *PostgresStorage) Update(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return promotion.Promotion{}, err
	}

	row := promotionModelFromEntity(p)
	res := db.Model(&promotionModel{}).
		Where("id = ?", p.ID).
		Select("name", "type", "discount", "customer", "start_date", "end_date").
		Updates(&row)
	if res.Error != nil {
		return promotion.Promotion{}, s.translate("update", res.Error)
	}
	if res.RowsAffected == 0 {
		return promotion.Promotion{}, ErrNotFound
	}
	return row.toEntity(), nil
}

func (s *PostgresStorage) Delete(ctx context.Context, id int64) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	res := db.Where("id = ?", id).Delete(&promotionModel{})
	if res.Error != nil {
		return s.translate("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) List(ctx context.Context, filter Filter) ([]promotion.Promotion, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	tx := db.Model(&promotionModel{})
	if filter.Name != nil {
		tx = tx.Where("name = ?", *filter.Name)
	}
	if filter.Type != nil {
		tx = tx.Where("type = ?", filter.Type.String())
	}
	if filter.Discount != nil {
		tx = tx.Where("discount = ?", *filter.Discount)
	}
	if filter.Customer != nil {
		tx = tx.Where("customer = ?", *filter.Customer)
	}
	if filter.StartDate != nil {
		tx = tx.Where("start_date = ?", formatDate(*filter.StartDate))
	}
	if filter.EndDate != nil {
		tx = tx.Where("end_date = ?", formatDate(*filter.EndDate))
	}

	var rows []promotionModel
	if err := tx.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, s.translate("list", err)
	}

	out := make([]promotion.Promotion, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (s *PostgresStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

func (s *PostgresStorage) handle(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db.WithContext(ctx), nil
}

func (s *PostgresStorage) translate(op string, err error) error {
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	s.logger.Error("postgres operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s promotion: %w", op, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
