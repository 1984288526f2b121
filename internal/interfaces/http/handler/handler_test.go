package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	catalogapp "github.com/erp/catalogcache/internal/application/catalog"
	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/infrastructure/cache"
	"github.com/erp/catalogcache/internal/interfaces/http/dto"
	"github.com/erp/catalogcache/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type noCosts struct{}

func (noCosts) Calculate(ctx context.Context, view catalog.SourceView, now time.Time) (catalog.CostCalculation, error) {
	return catalog.CostCalculation{Costs: catalog.CostHistory{}}, nil
}

var fixtureNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newCatalogService(t *testing.T, opts ...catalogapp.CatalogServiceOption) *catalogapp.CatalogService {
	t.Helper()
	clock := func() time.Time { return fixtureNow }
	store := cache.NewSourceStore(nil, zap.NewNop())
	snapshots := cache.NewSnapshotCache(cache.DefaultSnapshotCacheConfig(), zap.NewNop(), cache.WithClock(clock))
	opts = append([]catalogapp.CatalogServiceOption{catalogapp.WithServiceClock(clock)}, opts...)
	svc := catalogapp.NewCatalogService(store, snapshots, catalog.NewMergeEngine(catalog.MergeConfig{HistoryDays: 365}),
		catalogapp.NewCostRecomputeGate(noCosts{}, nil), zap.NewNop(), opts...)

	ctx := context.Background()
	require.NoError(t, catalogapp.OnSourceRefreshed(ctx, svc, catalog.ErpStock, []catalog.ErpStockRecord{
		{ProductCode: "P100", ProductName: "Hand cream", ProductTypeID: 1, Stock: decimal.NewFromInt(3)},
		{ProductCode: "G200", ProductName: "Glass jar", ProductTypeID: 2, Stock: decimal.NewFromInt(40)},
	}))
	require.NoError(t, catalogapp.OnSourceRefreshed(ctx, svc, catalog.Attributes, []catalog.ProductAttributesRecord{
		{ProductCode: "P100", StockMinSetup: decimal.NewFromInt(10)},
	}))
	return svc
}

func newRouter(register func(r *gin.Engine)) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	register(r)
	return r
}

func doRequest(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}
