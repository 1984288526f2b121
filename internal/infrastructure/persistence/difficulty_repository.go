package persistence

import (
	"context"
	"errors"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDifficultySettingRepository implements catalog.DifficultySettingRepository using GORM
type GormDifficultySettingRepository struct {
	db *gorm.DB
}

// NewGormDifficultySettingRepository creates a new GORM difficulty repository
func NewGormDifficultySettingRepository(db *gorm.DB) *GormDifficultySettingRepository {
	return &GormDifficultySettingRepository{db: db}
}

// FindAll returns every version of every product
func (r *GormDifficultySettingRepository) FindAll(ctx context.Context) ([]catalog.DifficultySetting, error) {
	var settings []catalog.DifficultySetting
	if err := r.db.WithContext(ctx).
		Order("product_code ASC").
		Order("valid_from DESC").
		Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

// FindByProductCode returns the versions of one product, newest start first
func (r *GormDifficultySettingRepository) FindByProductCode(ctx context.Context, productCode string) ([]catalog.DifficultySetting, error) {
	var settings []catalog.DifficultySetting
	if err := r.db.WithContext(ctx).
		Where("product_code = ?", productCode).
		Order("valid_from DESC").
		Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

// FindByID finds a version by its ID
func (r *GormDifficultySettingRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.DifficultySetting, error) {
	var setting catalog.DifficultySetting
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrDifficultyNotFound
		}
		return nil, err
	}
	return &setting, nil
}

// Save creates or updates a version
func (r *GormDifficultySettingRepository) Save(ctx context.Context, setting *catalog.DifficultySetting) error {
	return r.db.WithContext(ctx).Save(setting).Error
}

// SaveAll persists several versions in one transaction
func (r *GormDifficultySettingRepository) SaveAll(ctx context.Context, settings ...*catalog.DifficultySetting) error {
	if len(settings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range settings {
			if err := tx.Save(s).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a version
func (r *GormDifficultySettingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&catalog.DifficultySetting{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return catalog.ErrDifficultyNotFound
	}
	return nil
}

// Ensure GormDifficultySettingRepository implements the interface
var _ catalog.DifficultySettingRepository = (*GormDifficultySettingRepository)(nil)
