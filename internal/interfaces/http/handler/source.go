package handler

import (
	catalogapp "github.com/erp/catalogcache/internal/application/catalog"
	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/gin-gonic/gin"
)

// SourceHandler exposes source status, manual refresh and record pushes
type SourceHandler struct {
	BaseHandler
	catalogService *catalogapp.CatalogService
}

// NewSourceHandler creates a new SourceHandler
func NewSourceHandler(catalogService *catalogapp.CatalogService) *SourceHandler {
	return &SourceHandler{catalogService: catalogService}
}

// SourceKeyURI binds the :key path parameter
type SourceKeyURI struct {
	Key string `uri:"key" binding:"required,source_key"`
}

// SourceActionResponse reports the outcome of a refresh or push
type SourceActionResponse struct {
	Source  catalog.SourceKey `json:"source"`
	Records *int              `json:"records,omitempty"`
}

func (h *SourceHandler) bindKey(c *gin.Context) (catalog.SourceKey, bool) {
	var uri SourceKeyURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindError(c, err)
		return "", false
	}
	key, err := catalog.ParseSourceKey(uri.Key)
	if err != nil {
		h.HandleError(c, err)
		return "", false
	}
	return key, true
}

// Status handles GET /catalog/sources
func (h *SourceHandler) Status(c *gin.Context) {
	status, err := h.catalogService.Status(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// Refresh handles POST /catalog/sources/:key/refresh
func (h *SourceHandler) Refresh(c *gin.Context) {
	key, ok := h.bindKey(c)
	if !ok {
		return
	}

	if err := h.catalogService.TriggerManualRefresh(c.Request.Context(), key); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, SourceActionResponse{Source: key})
}

// PushRecords handles PUT /catalog/sources/:key/records.
// The body is the complete JSON array of records and replaces the dataset.
func (h *SourceHandler) PushRecords(c *gin.Context) {
	key, ok := h.bindKey(c)
	if !ok {
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	count, err := h.catalogService.ImportSourceRecords(c.Request.Context(), key, payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, SourceActionResponse{Source: key, Records: &count})
}
