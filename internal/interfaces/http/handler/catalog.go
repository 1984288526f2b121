package handler

import (
	"strconv"

	catalogapp "github.com/erp/catalogcache/internal/application/catalog"
	"github.com/gin-gonic/gin"
)

// CatalogHandler serves reads of the merged product catalog
type CatalogHandler struct {
	BaseHandler
	catalogService *catalogapp.CatalogService
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalogService *catalogapp.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// ListProducts handles GET /catalog/products.
// Query: type, code_prefix, search, below_min.
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	var filter catalogapp.ProductFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.catalogService.Find(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header(GenerationHeader, strconv.FormatUint(result.Generation, 10))
	h.Success(c, result)
}

// GetProduct handles GET /catalog/products/:code
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.catalogService.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header(GenerationHeader, strconv.FormatUint(product.Generation, 10))
	h.Success(c, product)
}

// AdjustStock handles POST /catalog/products/:code/stock-adjustment.
// The new quantity stays visible until the next merge.
func (h *CatalogHandler) AdjustStock(c *gin.Context) {
	var req catalogapp.StockAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	product, err := h.catalogService.ApplyOptimisticStockAdjustment(c.Request.Context(), c.Param("code"), req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header(GenerationHeader, strconv.FormatUint(product.Generation, 10))
	h.Success(c, product)
}
