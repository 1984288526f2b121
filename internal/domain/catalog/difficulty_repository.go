package catalog

import (
	"context"

	"github.com/google/uuid"
)

// DifficultySettingRepository defines the interface for difficulty version persistence
type DifficultySettingRepository interface {
	// FindAll returns every version of every product
	FindAll(ctx context.Context) ([]DifficultySetting, error)

	// FindByProductCode returns the versions of one product, newest start first
	FindByProductCode(ctx context.Context, productCode string) ([]DifficultySetting, error)

	// FindByID finds a version by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*DifficultySetting, error)

	// Save creates or updates a version
	Save(ctx context.Context, setting *DifficultySetting) error

	// SaveAll persists several versions in one transaction
	SaveAll(ctx context.Context, settings ...*DifficultySetting) error

	// Delete removes a version
	Delete(ctx context.Context, id uuid.UUID) error
}
