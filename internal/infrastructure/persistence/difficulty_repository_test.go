package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDifficultyTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&catalog.DifficultySetting{}))
	return db
}

func newSetting(t *testing.T, code string, value string, from time.Time) *catalog.DifficultySetting {
	s, err := catalog.NewDifficultySetting(code, decimal.RequireFromString(value), from, nil)
	require.NoError(t, err)
	return s
}

func TestDifficultyRepository_SaveAndFind(t *testing.T) {
	db := setupDifficultyTestDB(t)
	repo := NewGormDifficultySettingRepository(db)
	ctx := context.Background()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	older := newSetting(t, "P100", "1.5", jan)
	newer := newSetting(t, "P100", "2", jun)
	other := newSetting(t, "G200", "3", jan)

	require.NoError(t, repo.SaveAll(ctx, older, newer))
	require.NoError(t, repo.Save(ctx, other))

	t.Run("FindByProductCode returns newest first", func(t *testing.T) {
		settings, err := repo.FindByProductCode(ctx, "P100")
		require.NoError(t, err)
		require.Len(t, settings, 2)
		assert.Equal(t, newer.ID, settings[0].ID)
		assert.Equal(t, older.ID, settings[1].ID)
		assert.True(t, decimal.RequireFromString("2").Equal(settings[0].DifficultyValue))
	})

	t.Run("FindAll returns every product", func(t *testing.T) {
		settings, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, settings, 3)
		assert.Equal(t, "G200", settings[0].ProductCode)
	})

	t.Run("FindByID", func(t *testing.T) {
		found, err := repo.FindByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, "G200", found.ProductCode)
		require.NotNil(t, found.ValidFrom)
		assert.True(t, jan.Equal(*found.ValidFrom))
	})

	t.Run("FindByID unknown", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, catalog.ErrDifficultyNotFound)
	})
}

func TestDifficultyRepository_SaveUpdatesClosedVersion(t *testing.T) {
	db := setupDifficultyTestDB(t)
	repo := NewGormDifficultySettingRepository(db)
	ctx := context.Background()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	s := newSetting(t, "P100", "1", jan)
	require.NoError(t, repo.Save(ctx, s))

	require.NoError(t, s.CloseAt(mar))
	require.NoError(t, repo.SaveAll(ctx, s))

	found, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, found.ValidTo)
	assert.True(t, mar.Equal(*found.ValidTo))
}

func TestDifficultyRepository_SaveAllEmpty(t *testing.T) {
	repo := NewGormDifficultySettingRepository(setupDifficultyTestDB(t))
	assert.NoError(t, repo.SaveAll(context.Background()))
}

func TestDifficultyRepository_Delete(t *testing.T) {
	db := setupDifficultyTestDB(t)
	repo := NewGormDifficultySettingRepository(db)
	ctx := context.Background()

	s := newSetting(t, "P100", "1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Save(ctx, s))

	require.NoError(t, repo.Delete(ctx, s.ID))
	_, err := repo.FindByID(ctx, s.ID)
	assert.ErrorIs(t, err, catalog.ErrDifficultyNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, s.ID), catalog.ErrDifficultyNotFound)
}
