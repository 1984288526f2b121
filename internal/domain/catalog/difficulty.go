package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/erp/catalogcache/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DifficultySetting is one version of a product's difficulty weight.
// The version applies on [ValidFrom, ValidTo); a nil bound is open.
type DifficultySetting struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProductCode     string          `gorm:"type:varchar(50);not null;index:idx_difficulty_product" json:"product_code"`
	DifficultyValue decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"difficulty_value"`
	ValidFrom       *time.Time      `json:"valid_from,omitempty"`
	ValidTo         *time.Time      `json:"valid_to,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the table name for GORM
func (DifficultySetting) TableName() string {
	return "manufacture_difficulty_settings"
}

// NewDifficultySetting creates a validated difficulty version
func NewDifficultySetting(productCode string, value decimal.Decimal, validFrom time.Time, validTo *time.Time) (*DifficultySetting, error) {
	code := strings.TrimSpace(productCode)
	if code == "" {
		return nil, shared.ErrInvalidInput.WithMessage("product code cannot be empty")
	}
	if !value.IsPositive() {
		return nil, shared.ErrInvalidInput.WithMessage("difficulty value must be positive")
	}
	if validFrom.IsZero() {
		return nil, shared.ErrInvalidInput.WithMessage("valid from is required")
	}
	if validTo != nil && !validTo.After(validFrom) {
		return nil, shared.ErrInvalidInput.WithMessage("valid to must be after valid from")
	}

	from := validFrom
	return &DifficultySetting{
		ID:              uuid.New(),
		ProductCode:     code,
		DifficultyValue: value,
		ValidFrom:       &from,
		ValidTo:         validTo,
	}, nil
}

// IsValidAt reports whether t falls inside [ValidFrom, ValidTo)
func (d DifficultySetting) IsValidAt(t time.Time) bool {
	if d.ValidFrom != nil && t.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidTo != nil && !t.Before(*d.ValidTo) {
		return false
	}
	return true
}

// IsOpenEnded reports whether the version has no end
func (d DifficultySetting) IsOpenEnded() bool {
	return d.ValidTo == nil
}

// CloseAt ends an open version at t
func (d *DifficultySetting) CloseAt(t time.Time) error {
	if d.ValidTo != nil {
		return shared.ErrInvalidState.WithMessage("difficulty version %s is already closed", d.ID)
	}
	if d.ValidFrom != nil && !t.After(*d.ValidFrom) {
		return shared.ErrInvalidInput.WithMessage("closing date must be after valid from")
	}
	end := t
	d.ValidTo = &end
	return nil
}

// startsAfter orders versions by ValidFrom, nil being the earliest
func (d DifficultySetting) startsAfter(other DifficultySetting) bool {
	switch {
	case d.ValidFrom == nil:
		return false
	case other.ValidFrom == nil:
		return true
	default:
		return d.ValidFrom.After(*other.ValidFrom)
	}
}

// SelectCurrent returns the version valid at t. When several overlap the
// one starting most recently wins. nil means no version applies.
func SelectCurrent(settings []DifficultySetting, t time.Time) *DifficultySetting {
	var current *DifficultySetting
	for i := range settings {
		s := settings[i]
		if !s.IsValidAt(t) {
			continue
		}
		if current == nil || s.startsAfter(*current) {
			current = &settings[i]
		}
	}
	return current
}

// DifficultyIndex groups difficulty versions by product code and resolves
// the weight used by cost allocation
type DifficultyIndex struct {
	byProduct map[string][]DifficultySetting
	current   map[string]DifficultySetting
}

// NewDifficultyIndex builds an index; the current version of every product
// is evaluated at now
func NewDifficultyIndex(settings []DifficultySetting, now time.Time) *DifficultyIndex {
	idx := &DifficultyIndex{
		byProduct: make(map[string][]DifficultySetting),
		current:   make(map[string]DifficultySetting),
	}
	for _, s := range settings {
		code := NormalizeProductCode(s.ProductCode)
		if code == "" {
			continue
		}
		idx.byProduct[code] = append(idx.byProduct[code], s)
	}
	for code, versions := range idx.byProduct {
		sort.SliceStable(versions, func(i, j int) bool { return versions[i].startsAfter(versions[j]) })
		if cur := SelectCurrent(versions, now); cur != nil {
			idx.current[code] = *cur
		}
	}
	return idx
}

// Current returns the current version of a product
func (idx *DifficultyIndex) Current(productCode string) (DifficultySetting, bool) {
	s, ok := idx.current[NormalizeProductCode(productCode)]
	return s, ok
}

// History returns every version of a product, newest start first
func (idx *DifficultyIndex) History(productCode string) []DifficultySetting {
	return idx.byProduct[NormalizeProductCode(productCode)]
}

// WeightAt returns the weight valid at the given date, falling back to the
// current version. Products without a current version are excluded.
func (idx *DifficultyIndex) WeightAt(productCode string, at time.Time) (decimal.Decimal, bool) {
	productCode = NormalizeProductCode(productCode)
	current, ok := idx.current[productCode]
	if !ok {
		return decimal.Zero, false
	}
	if s := SelectCurrent(idx.byProduct[productCode], at); s != nil {
		return s.DifficultyValue, true
	}
	return current.DifficultyValue, true
}
