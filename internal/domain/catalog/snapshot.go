package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot is a merged list of product aggregates as of BuiltAt.
// Snapshots are immutable; WithStockAdjustment is the one exception and
// produces a copy instead of touching the receiver.
type Snapshot struct {
	generation uint64
	mergeID    uuid.UUID
	builtAt    time.Time
	products   []ProductAggregate
	index      map[string]int
}

// NewSnapshot creates a snapshot. generation must increase with every merge.
func NewSnapshot(generation uint64, builtAt time.Time, products []ProductAggregate) *Snapshot {
	index := make(map[string]int, len(products))
	for i := range products {
		index[products[i].ProductCode] = i
	}
	return &Snapshot{
		generation: generation,
		mergeID:    uuid.New(),
		builtAt:    builtAt,
		products:   products,
		index:      index,
	}
}

// Generation returns the merge sequence that built the snapshot
func (s *Snapshot) Generation() uint64 { return s.generation }

// MergeID returns the unique id of the merge run
func (s *Snapshot) MergeID() uuid.UUID { return s.mergeID }

// BuiltAt returns when the merge producing the snapshot started
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Len returns the number of products
func (s *Snapshot) Len() int { return len(s.products) }

// Age returns how old the snapshot is at now
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.builtAt)
}

// IsFresh reports whether the snapshot is within the validity period
func (s *Snapshot) IsFresh(now time.Time, validity time.Duration) bool {
	return s.Age(now) <= validity
}

// Products returns a copy of the product list
func (s *Snapshot) Products() []ProductAggregate {
	out := make([]ProductAggregate, len(s.products))
	copy(out, s.products)
	return out
}

// Get returns the aggregate of a product code
func (s *Snapshot) Get(code string) (ProductAggregate, bool) {
	i, ok := s.index[NormalizeProductCode(code)]
	if !ok {
		return ProductAggregate{}, false
	}
	return s.products[i], true
}

// Find returns the aggregates matching the predicate, in snapshot order
func (s *Snapshot) Find(predicate func(*ProductAggregate) bool) []ProductAggregate {
	out := make([]ProductAggregate, 0)
	for i := range s.products {
		if predicate == nil || predicate(&s.products[i]) {
			out = append(out, s.products[i])
		}
	}
	return out
}

// WithStockAdjustment returns a copy of the snapshot in which the ERP stock
// of one product is replaced. Generation and BuiltAt are kept, so the next
// merge overwrites the adjustment.
func (s *Snapshot) WithStockAdjustment(code string, quantity decimal.Decimal) (*Snapshot, error) {
	i, ok := s.index[NormalizeProductCode(code)]
	if !ok {
		return nil, ErrProductNotFound.WithMessage("product %s not found in catalog", code)
	}

	products := make([]ProductAggregate, len(s.products))
	copy(products, s.products)
	adjusted := products[i]
	adjusted.Stock.Erp = quantity
	products[i] = adjusted

	return &Snapshot{
		generation: s.generation,
		mergeID:    s.mergeID,
		builtAt:    s.builtAt,
		products:   products,
		index:      s.index,
	}, nil
}
