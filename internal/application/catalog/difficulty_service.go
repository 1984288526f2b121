package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DifficultyService manages the versioned manufacture difficulty of products
type DifficultyService struct {
	repo      catalog.DifficultySettingRepository
	publisher shared.EventPublisher
	logger    *zap.Logger
	clock     func() time.Time
}

// NewDifficultyService creates a new DifficultyService
func NewDifficultyService(repo catalog.DifficultySettingRepository, publisher shared.EventPublisher, logger *zap.Logger) *DifficultyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DifficultyService{
		repo:      repo,
		publisher: publisher,
		logger:    logger.Named("difficulty_service"),
		clock:     time.Now,
	}
}

// List returns the versions of a product, newest start first
func (s *DifficultyService) List(ctx context.Context, productCode string) ([]DifficultySettingResponse, error) {
	settings, err := s.repo.FindByProductCode(ctx, productCode)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(settings)

	current := catalog.SelectCurrent(settings, s.clock())
	result := make([]DifficultySettingResponse, len(settings))
	for i, setting := range settings {
		result[i] = ToDifficultySettingResponse(setting, current != nil && current.ID == setting.ID)
	}
	return result, nil
}

// Create adds a new version. An open-ended version starting earlier is
// closed at the start of the new one.
func (s *DifficultyService) Create(ctx context.Context, productCode string, req CreateDifficultyRequest) (*DifficultySettingResponse, error) {
	setting, err := catalog.NewDifficultySetting(productCode, req.Difficulty, req.ValidFrom, req.ValidTo)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByProductCode(ctx, setting.ProductCode)
	if err != nil {
		return nil, err
	}

	toSave := make([]*catalog.DifficultySetting, 0, 2)
	for i := range existing {
		prev := &existing[i]
		if prev.ValidFrom != nil && prev.ValidFrom.Equal(*setting.ValidFrom) {
			return nil, shared.ErrAlreadyExists.WithMessage(
				"difficulty version starting %s already exists for %s",
				setting.ValidFrom.Format(time.DateOnly), setting.ProductCode)
		}
		if prev.IsOpenEnded() && (prev.ValidFrom == nil || prev.ValidFrom.Before(*setting.ValidFrom)) {
			if err := prev.CloseAt(*setting.ValidFrom); err != nil {
				return nil, err
			}
			toSave = append(toSave, prev)
		}
	}
	toSave = append(toSave, setting)

	if err := s.repo.SaveAll(ctx, toSave...); err != nil {
		return nil, err
	}

	s.logger.Info("difficulty version created",
		zap.String("product_code", setting.ProductCode),
		zap.String("id", setting.ID.String()),
		zap.String("difficulty", setting.DifficultyValue.String()),
		zap.Int("closed_versions", len(toSave)-1),
	)
	s.publish(ctx, catalog.NewDifficultyChangedEvent(setting.ProductCode, setting.ID, catalog.DifficultyChangeCreated))

	resp := ToDifficultySettingResponse(*setting, setting.IsValidAt(s.clock()))
	return &resp, nil
}

// Delete removes a version of a product
func (s *DifficultyService) Delete(ctx context.Context, productCode string, id uuid.UUID) error {
	setting, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if setting.ProductCode != productCode {
		return catalog.ErrDifficultyNotFound.WithMessage("difficulty version %s not found for %s", id, productCode)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("difficulty version deleted",
		zap.String("product_code", productCode),
		zap.String("id", id.String()),
	)
	s.publish(ctx, catalog.NewDifficultyChangedEvent(productCode, id, catalog.DifficultyChangeDeleted))
	return nil
}

// FetchAll returns every version; it feeds the ManufactureDifficulty source
func (s *DifficultyService) FetchAll(ctx context.Context) ([]catalog.DifficultySetting, error) {
	return s.repo.FindAll(ctx)
}

func (s *DifficultyService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish difficulty event", zap.Error(err))
	}
}

func sortNewestFirst(settings []catalog.DifficultySetting) {
	sort.SliceStable(settings, func(i, j int) bool {
		a, b := settings[i].ValidFrom, settings[j].ValidFrom
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
