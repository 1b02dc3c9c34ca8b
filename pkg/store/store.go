// Package store persists products and imported media with GORM.
// PostgreSQL is the production backend; any GORM dialector that supports
// ON CONFLICT works.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Config holds the database settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// LogLevel is one of silent, error, warn, info.
	LogLevel string
}

// DefaultConfig returns the default pool settings.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		LogLevel:        "warn",
	}
}

// Store is the record store.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:                 NewGormLogger(logger, ParseLogLevel(cfg.LogLevel)),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(db), nil
}

// New wraps an open GORM handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Product{}, &MediaSet{}, &MediaAsset{})
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// CreateProduct inserts a product.
func (s *Store) CreateProduct(ctx context.Context, p *Product) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// FindProductBySKU returns the product with the given SKU or ErrNotFound.
func (s *Store) FindProductBySKU(ctx context.Context, sku string) (*Product, error) {
	var p Product
	err := s.db.WithContext(ctx).Where("sku = ?", sku).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product %q: %w", sku, err)
	}
	return &p, nil
}

// FindProductByExternalID returns the product imported under externalID or ErrNotFound.
func (s *Store) FindProductByExternalID(ctx context.Context, externalID string) (*Product, error) {
	var p Product
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product %q: %w", externalID, err)
	}
	return &p, nil
}

// UpsertProduct creates or updates the product identified by externalID.
// Only the fields set in patch are written on update. It reports whether a
// new product was created.
func (s *Store) UpsertProduct(ctx context.Context, externalID string, patch ProductPatch) (bool, error) {
	if externalID == "" {
		return false, errors.New("external ID is required")
	}

	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Product
		err := tx.Where("external_id = ?", externalID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			p := Product{ExternalID: &externalID}
			patch.Apply(&p)
			if p.SKU == "" {
				return errors.New("sku is required to create a product")
			}
			created = true
			return tx.Create(&p).Error
		case err != nil:
			return err
		}

		if patch.IsEmpty() {
			return nil
		}
		return tx.Model(&existing).Updates(patch.Updates()).Error
	})
	if err != nil {
		return false, fmt.Errorf("upsert product %q: %w", externalID, err)
	}
	return created, nil
}

// UpsertMediaSet returns the media set for groupKey, creating it for
// productID if it does not exist yet. Creation is a single
// INSERT ... ON CONFLICT (group_key) DO NOTHING followed by a read, so
// concurrent callers converge on one row. It reports whether this call
// created the set.
func (s *Store) UpsertMediaSet(ctx context.Context, groupKey string, productID uuid.UUID) (*MediaSet, bool, error) {
	if groupKey == "" {
		return nil, false, errors.New("group key is required")
	}

	db := s.db.WithContext(ctx)
	candidate := MediaSet{GroupKey: groupKey, ProductID: productID}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_key"}},
		DoNothing: true,
	}).Create(&candidate)
	if result.Error != nil {
		return nil, false, fmt.Errorf("create media set %q: %w", groupKey, result.Error)
	}

	var set MediaSet
	if err := db.Where("group_key = ?", groupKey).First(&set).Error; err != nil {
		return nil, false, fmt.Errorf("read media set %q: %w", groupKey, err)
	}
	return &set, result.RowsAffected > 0, nil
}

// SaveMediaAsset inserts asset, or refreshes the row with the same
// (media_set_id, storage_key, snapshot).
func (s *Store) SaveMediaAsset(ctx context.Context, asset *MediaAsset) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "media_set_id"}, {Name: "storage_key"}, {Name: "snapshot"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_file_id", "source_path", "file_name", "content_type",
			"size_bytes", "workflow_state", "updated_at",
		}),
	}).Create(asset).Error
	if err != nil {
		return fmt.Errorf("save media asset %q: %w", asset.StorageKey, err)
	}
	return nil
}

// ListMediaAssets returns the assets of a media set, oldest first.
func (s *Store) ListMediaAssets(ctx context.Context, mediaSetID uuid.UUID) ([]MediaAsset, error) {
	var assets []MediaAsset
	err := s.db.WithContext(ctx).
		Where("media_set_id = ?", mediaSetID).
		Order("created_at, storage_key").
		Find(&assets).Error
	if err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}
	return assets, nil
}

// Counts holds table sizes.
type Counts struct {
	Products    int64
	MediaSets   int64
	MediaAssets int64
}

// Count returns the number of rows per table.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&Product{}).Count(&c.Products).Error; err != nil {
		return c, fmt.Errorf("count products: %w", err)
	}
	if err := db.Model(&MediaSet{}).Count(&c.MediaSets).Error; err != nil {
		return c, fmt.Errorf("count media sets: %w", err)
	}
	if err := db.Model(&MediaAsset{}).Count(&c.MediaAssets).Error; err != nil {
		return c, fmt.Errorf("count media assets: %w", err)
	}
	return c, nil
}
