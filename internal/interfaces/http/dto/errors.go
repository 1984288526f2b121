package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown     = "ERR_UNKNOWN"
	ErrCodeInternal    = "ERR_INTERNAL"
	ErrCodeTimeout     = "ERR_TIMEOUT"
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Input error codes
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeInvalidState  = "ERR_INVALID_STATE"
)

// Catalog error codes
const (
	// ErrCodeCacheEmpty is used before the first snapshot has been built
	ErrCodeCacheEmpty = "ERR_CACHE_EMPTY"
	// ErrCodeStaleSnapshot is used when a merge result is older than the published snapshot
	ErrCodeStaleSnapshot = "ERR_STALE_SNAPSHOT"
	// ErrCodeUnknownSource is used for source keys outside the catalogue
	ErrCodeUnknownSource = "ERR_UNKNOWN_SOURCE"
	// ErrCodeMergeFailed is used when a merge could not complete
	ErrCodeMergeFailed = "ERR_MERGE_FAILED"
	// ErrCodeRefreshInProgress is used when another instance holds the refresh lease
	ErrCodeRefreshInProgress = "ERR_REFRESH_IN_PROGRESS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeTimeout:     http.StatusGatewayTimeout,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeInvalidState:  http.StatusUnprocessableEntity,

	ErrCodeCacheEmpty:        http.StatusServiceUnavailable,
	ErrCodeStaleSnapshot:     http.StatusConflict,
	ErrCodeUnknownSource:     http.StatusNotFound,
	ErrCodeMergeFailed:       http.StatusInternalServerError,
	ErrCodeRefreshInProgress: http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":      ErrCodeNotFound,
	"ALREADY_EXISTS": ErrCodeAlreadyExists,
	"INVALID_INPUT":  ErrCodeInvalidInput,
	"INVALID_STATE":  ErrCodeInvalidState,
	"CACHE_EMPTY":    ErrCodeCacheEmpty,
	"STALE_SNAPSHOT": ErrCodeStaleSnapshot,
	"UNKNOWN_SOURCE": ErrCodeUnknownSource,
	"MERGE_FAILED":   ErrCodeMergeFailed,
	"TIMEOUT":        ErrCodeTimeout,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in API format are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
