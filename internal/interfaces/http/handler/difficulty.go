package handler

import (
	catalogapp "github.com/erp/catalogcache/internal/application/catalog"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DifficultyHandler manages manufacture difficulty versions
type DifficultyHandler struct {
	BaseHandler
	difficultyService *catalogapp.DifficultyService
}

// NewDifficultyHandler creates a new DifficultyHandler
func NewDifficultyHandler(difficultyService *catalogapp.DifficultyService) *DifficultyHandler {
	return &DifficultyHandler{difficultyService: difficultyService}
}

// List handles GET /catalog/difficulty/:code
func (h *DifficultyHandler) List(c *gin.Context) {
	settings, err := h.difficultyService.List(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, settings)
}

// Create handles POST /catalog/difficulty/:code
func (h *DifficultyHandler) Create(c *gin.Context) {
	var req catalogapp.CreateDifficultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	setting, err := h.difficultyService.Create(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, setting)
}

// Delete handles DELETE /catalog/difficulty/:code/:id
func (h *DifficultyHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid difficulty setting ID")
		return
	}

	if err := h.difficultyService.Delete(c.Request.Context(), c.Param("code"), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
