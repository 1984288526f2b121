package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeCacheEmpty, http.StatusServiceUnavailable},
		{ErrCodeStaleSnapshot, http.StatusConflict},
		{ErrCodeUnknownSource, http.StatusNotFound},
		{ErrCodeRefreshInProgress, http.StatusConflict},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeTimeout, http.StatusGatewayTimeout},
		{"ERR_SOMETHING_NEW", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeCacheEmpty, NormalizeErrorCode("CACHE_EMPTY"))
	assert.Equal(t, ErrCodeUnknownSource, NormalizeErrorCode("UNKNOWN_SOURCE"))
	assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode(ErrCodeNotFound))
	assert.Equal(t, "CUSTOM", NormalizeErrorCode("CUSTOM"))
}

func TestEveryDomainCodeHasStatus(t *testing.T) {
	for domainCode, apiCode := range DomainErrorCodeMapping {
		_, ok := ErrorCodeHTTPStatus[apiCode]
		assert.True(t, ok, "no status for %s (%s)", apiCode, domainCode)
	}
}

func TestNewValidationErrorResponse(t *testing.T) {
	resp := NewValidationErrorResponse("Request validation failed", "req-1", []ValidationDetail{
		{Field: "quantity", Message: "This field is required"},
	})

	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 1)
}
