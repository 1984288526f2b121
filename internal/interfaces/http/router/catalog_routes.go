package router

import (
	"github.com/erp/catalogcache/internal/interfaces/http/handler"
)

// CatalogHandlers bundles the handlers served under the API prefix
type CatalogHandlers struct {
	Catalog    *handler.CatalogHandler
	Sources    *handler.SourceHandler
	Difficulty *handler.DifficultyHandler
	System     *handler.SystemHandler
}

// NewCatalogRoutes builds the catalog and system domain groups
func NewCatalogRoutes(h CatalogHandlers) []*DomainGroup {
	catalogRoutes := NewDomainGroup("catalog", "/catalog")

	catalogRoutes.Group("products", "/products").
		GET("", h.Catalog.ListProducts).
		GET("/:code", h.Catalog.GetProduct).
		POST("/:code/stock-adjustment", h.Catalog.AdjustStock)

	catalogRoutes.Group("sources", "/sources").
		GET("", h.Sources.Status).
		POST("/:key/refresh", h.Sources.Refresh).
		PUT("/:key/records", h.Sources.PushRecords)

	// difficulty management needs the database
	if h.Difficulty != nil {
		catalogRoutes.Group("difficulty", "/difficulty").
			GET("/:code", h.Difficulty.List).
			POST("/:code", h.Difficulty.Create).
			DELETE("/:code/:id", h.Difficulty.Delete)
	}

	systemRoutes := NewDomainGroup("system", "/system").
		GET("/ping", h.System.Ping).
		GET("/info", h.System.GetSystemInfo)

	return []*DomainGroup{catalogRoutes, systemRoutes}
}

// RegisterGroups registers every group with the router
func (r *Router) RegisterGroups(groups []*DomainGroup) *Router {
	for _, group := range groups {
		r.Register(group)
	}
	return r
}
