package testutil

import (
	"context"
	"testing"

	"github.com/Sternrassler/pim-sync/pkg/store"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewSQLiteStore returns a migrated store backed by an in-memory SQLite
// database that lives as long as the test.
func NewSQLiteStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection to :memory: would be a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := store.New(db)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SeedProduct inserts a product with the given SKU.
func SeedProduct(t *testing.T, s *store.Store, sku string) *store.Product {
	t.Helper()
	p := &store.Product{SKU: sku, Title: "Product " + sku}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}
