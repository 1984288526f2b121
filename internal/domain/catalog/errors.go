package catalog

import "github.com/erp/catalogcache/internal/domain/shared"

// Catalog errors
var (
	ErrProductNotFound    = shared.NewDomainError("NOT_FOUND", "Product not found in catalog")
	ErrCacheEmpty         = shared.ErrCacheEmpty
	ErrStaleSnapshot      = shared.ErrStaleSnapshot
	ErrUnknownSource      = shared.ErrUnknownSource
	ErrMergeFailed        = shared.NewDomainError("MERGE_FAILED", "Catalog merge failed")
	ErrDifficultyNotFound = shared.NewDomainError("NOT_FOUND", "Difficulty setting not found")
	ErrInvalidRecords     = shared.NewDomainError("INVALID_INPUT", "Source records are invalid")
)
