//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/pim-sync/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pim_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := store.DefaultConfig()
	cfg.DSN = dsn
	s, err := store.Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStoreIntegration_MediaSetUpsertIsIdempotent(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	p := &store.Product{SKU: "SKU-100"}
	require.NoError(t, s.CreateProduct(ctx, p))

	_, created, err := s.UpsertMediaSet(ctx, "SKU-100", p.ID)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = s.UpsertMediaSet(ctx, "SKU-100", p.ID)
	require.NoError(t, err)
	assert.False(t, created)

	counts, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.MediaSets)
}

func TestStoreIntegration_MediaAssetConflictUpdates(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	p := &store.Product{SKU: "SKU-200"}
	require.NoError(t, s.CreateProduct(ctx, p))
	set, _, err := s.UpsertMediaSet(ctx, "SKU-200", p.ID)
	require.NoError(t, err)

	for _, size := range []int64{1, 2} {
		require.NoError(t, s.SaveMediaAsset(ctx, &store.MediaAsset{
			MediaSetID:   set.ID,
			StorageKey:   "media/SKU-200/a.png",
			SourceFileID: "f",
			SourcePath:   "SKU-200/a.png",
			FileName:     "a.png",
			ContentType:  "image/png",
			SizeBytes:    size,
		}))
	}

	assets, err := s.ListMediaAssets(ctx, set.ID)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, int64(2), assets[0].SizeBytes)
}
