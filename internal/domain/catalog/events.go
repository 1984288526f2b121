package catalog

import (
	"time"

	"github.com/erp/catalogcache/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constants
const (
	AggregateTypeSource     = "Source"
	AggregateTypeDifficulty = "DifficultySetting"
)

// Event type constants
const (
	EventTypeSourceRefreshed   = "SourceRefreshed"
	EventTypeDifficultyChanged = "DifficultyChanged"
)

// SourceRefreshedEvent is published after a source dataset was replaced
type SourceRefreshedEvent struct {
	shared.BaseDomainEvent
	Source   SourceKey `json:"source"`
	Records  int       `json:"records"`
	LoadedAt time.Time `json:"loaded_at"`
}

// NewSourceRefreshedEvent creates a new SourceRefreshedEvent
func NewSourceRefreshedEvent(key SourceKey, records int, loadedAt time.Time) *SourceRefreshedEvent {
	return &SourceRefreshedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSourceRefreshed, AggregateTypeSource, string(key)),
		Source:          key,
		Records:         records,
		LoadedAt:        loadedAt,
	}
}

// DifficultyChangeAction describes what happened to a difficulty version
type DifficultyChangeAction string

const (
	DifficultyChangeCreated DifficultyChangeAction = "created"
	DifficultyChangeDeleted DifficultyChangeAction = "deleted"
)

// DifficultyChangedEvent is published when difficulty versions are edited
type DifficultyChangedEvent struct {
	shared.BaseDomainEvent
	ProductCode string                 `json:"product_code"`
	SettingID   uuid.UUID              `json:"setting_id"`
	Action      DifficultyChangeAction `json:"action"`
}

// NewDifficultyChangedEvent creates a new DifficultyChangedEvent
func NewDifficultyChangedEvent(productCode string, settingID uuid.UUID, action DifficultyChangeAction) *DifficultyChangedEvent {
	return &DifficultyChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDifficultyChanged, AggregateTypeDifficulty, productCode),
		ProductCode:     productCode,
		SettingID:       settingID,
		Action:          action,
	}
}
