package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozanalabs/catalog-service/internal/assembly"
	"github.com/rozanalabs/catalog-service/internal/config"
	"github.com/rozanalabs/catalog-service/internal/db"
	"github.com/rozanalabs/catalog-service/internal/models"
	"github.com/rozanalabs/catalog-service/internal/pricing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeStore implements Store in memory for handler tests. Only the fields a
// test populates are meaningful; everything else returns zero values.
type fakeStore struct {
	products    map[int64]*models.Product
	clusters    map[int64]*models.Cluster
	facilities  []models.Facility
	variants    []models.ProductVariant
	inventories []models.FacilityInventory
	latest      map[int64]models.PriceHistory
	statuses    map[int64]*db.ClusterPriceStatus

	updateCalls  [][]pricing.PriceUpdate
	historyCalls [][]models.PriceHistory
	nextHistID   int64
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }

func (f *fakeStore) CreateProduct(ctx context.Context, p *models.Product, plan *assembly.Plan) (int64, error) {
	return 1, nil
}
func (f *fakeStore) UpdateProduct(ctx context.Context, p *models.Product, plan *assembly.Plan) error {
	return nil
}
func (f *fakeStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, db.ErrNotFound
}
func (f *fakeStore) ListProducts(ctx context.Context, filter db.ProductListFilter, limit, offset int) ([]models.Product, error) {
	return nil, nil
}
func (f *fakeStore) DeleteProduct(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) VariantsForProduct(ctx context.Context, productID int64, activeOnly bool) ([]models.ProductVariant, error) {
	return nil, nil
}
func (f *fakeStore) ExistingVariantLinks(ctx context.Context, productID int64) (map[string]int64, error) {
	return nil, nil
}
func (f *fakeStore) ComboFlags(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return nil, nil
}
func (f *fakeStore) ListCategories(ctx context.Context) ([]models.Category, error) { return nil, nil }
func (f *fakeStore) ListBrands(ctx context.Context) ([]models.Brand, error)        { return nil, nil }

func (f *fakeStore) CreateCombo(ctx context.Context, combo *models.ComboProduct) (int64, error) {
	return 0, nil
}
func (f *fakeStore) GetCombo(ctx context.Context, id int64) (*models.ComboProduct, error) {
	return nil, db.ErrNotFound
}
func (f *fakeStore) ListCombos(ctx context.Context, activeOnly bool, limit, offset int) ([]models.ComboProduct, error) {
	return nil, nil
}
func (f *fakeStore) DeactivateCombo(ctx context.Context, id int64) error { return nil }

func (f *fakeStore) CreateFacility(ctx context.Context, fc *models.Facility) (int64, error) {
	return 0, nil
}
func (f *fakeStore) GetFacility(ctx context.Context, id int64) (*models.Facility, error) {
	return nil, db.ErrNotFound
}
func (f *fakeStore) ListFacilities(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Facility, error) {
	return f.facilities, nil
}
func (f *fakeStore) UpdateFacility(ctx context.Context, fc *models.Facility) error { return nil }
func (f *fakeStore) DeleteFacility(ctx context.Context, id int64) error            { return nil }
func (f *fakeStore) InventoriesForFacility(ctx context.Context, facilityID int64, limit, offset int) ([]models.FacilityInventory, error) {
	return nil, nil
}

func (f *fakeStore) CreateCluster(ctx context.Context, c *models.Cluster) (int64, error) {
	return 0, nil
}
func (f *fakeStore) GetCluster(ctx context.Context, id int64) (*models.Cluster, error) {
	if c, ok := f.clusters[id]; ok {
		return c, nil
	}
	return nil, db.ErrNotFound
}
func (f *fakeStore) ListClusters(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Cluster, error) {
	return nil, nil
}
func (f *fakeStore) UpdateCluster(ctx context.Context, c *models.Cluster) error { return nil }
func (f *fakeStore) DeleteCluster(ctx context.Context, id int64) error          { return nil }

func (f *fakeStore) ActiveFacilitiesByIDs(ctx context.Context, ids []int64) ([]models.Facility, error) {
	var out []models.Facility
	for _, fc := range f.facilities {
		for _, id := range ids {
			if fc.ID == id {
				out = append(out, fc)
			}
		}
	}
	return out, nil
}
func (f *fakeStore) ActiveFacilitiesInClusters(ctx context.Context, clusterIDs []int64) ([]models.Facility, error) {
	return f.facilities, nil
}
func (f *fakeStore) EligibleVariants(ctx context.Context, facilityIDs []int64, filter pricing.VariantFilter) ([]models.ProductVariant, error) {
	if len(filter.VariantIDs) == 0 {
		return f.variants, nil
	}
	var out []models.ProductVariant
	for _, v := range f.variants {
		for _, id := range filter.VariantIDs {
			if v.ID == id {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) InventoriesFor(ctx context.Context, facilityIDs, variantIDs []int64) ([]models.FacilityInventory, error) {
	return f.inventories, nil
}
func (f *fakeStore) UpdateSellingPrices(ctx context.Context, updates []pricing.PriceUpdate) error {
	cp := make([]pricing.PriceUpdate, len(updates))
	copy(cp, updates)
	f.updateCalls = append(f.updateCalls, cp)
	return nil
}
func (f *fakeStore) InsertPriceHistory(ctx context.Context, rows []models.PriceHistory) ([]int64, error) {
	cp := make([]models.PriceHistory, len(rows))
	copy(cp, rows)
	f.historyCalls = append(f.historyCalls, cp)
	ids := make([]int64, len(rows))
	for i := range ids {
		f.nextHistID++
		ids[i] = f.nextHistID
	}
	return ids, nil
}
func (f *fakeStore) GetOrCreateInventory(ctx context.Context, facilityID int64, v *models.ProductVariant) (*models.FacilityInventory, error) {
	for i := range f.inventories {
		inv := &f.inventories[i]
		if inv.FacilityID == facilityID && inv.ProductVariantID == v.ID {
			return inv, nil
		}
	}
	return &models.FacilityInventory{
		ID:               int64(9000 + len(f.inventories)),
		FacilityID:       facilityID,
		ProductVariantID: v.ID,
		SellingPrice:     v.SellingPrice,
	}, nil
}

func (f *fakeStore) ListPriceHistory(ctx context.Context, filter models.PriceHistoryFilter, limit, offset int) ([]models.PriceHistory, int64, error) {
	return nil, 0, nil
}
func (f *fakeStore) LatestHistoryForVariants(ctx context.Context, variantIDs []int64) (map[int64]models.PriceHistory, error) {
	if f.latest == nil {
		return map[int64]models.PriceHistory{}, nil
	}
	return f.latest, nil
}
func (f *fakeStore) ClusterPriceStatuses(ctx context.Context, clusterIDs []int64) (map[int64]*db.ClusterPriceStatus, error) {
	return f.statuses, nil
}

func newTestHandler(store Store) *Handler {
	cfg := &config.Config{}
	cfg.Pricing.BatchSize = 100
	cfg.Pricing.MaxPageSize = 1000
	cfg.Pricing.MaxVariants = 5000
	return NewHandler(store, cfg)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func overrideRouter(store Store) *gin.Engine {
	h := newTestHandler(store)
	r := gin.New()
	r.POST("/pricing/override", h.OverridePrices)
	r.PUT("/products/:id/cluster-price", h.UpdateClusterPrice)
	r.POST("/clusters/price-update-status", h.ClusterPriceUpdateStatus)
	return r
}

func pricedStore() *fakeStore {
	return &fakeStore{
		clusters: map[int64]*models.Cluster{
			5: {ID: 5, Name: "North", IsActive: true},
		},
		facilities: []models.Facility{
			{ID: 1, Name: "Store A", IsActive: true},
			{ID: 2, Name: "Store B", IsActive: true},
		},
		variants: []models.ProductVariant{
			{ID: 10, ProductID: 100, Name: "1kg", SKU: "ROZ01-1KG", BasePrice: 100, MRP: 200, ProductName: "Rice"},
		},
		inventories: []models.FacilityInventory{
			{ID: 1, FacilityID: 1, ProductVariantID: 10, SellingPrice: 110, Stock: 4},
			{ID: 2, FacilityID: 2, ProductVariantID: 10, SellingPrice: 115, Stock: 9},
		},
	}
}

func TestOverrideExecutionRequiresVariantSelection(t *testing.T) {
	router := overrideRouter(pricedStore())

	w := doJSON(t, router, http.MethodPost, "/pricing/override", gin.H{
		"cluster_ids": []int64{5},
		"margin":      10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "variant_ids")
}

func TestOverrideDiscoveryNeedsNoVariantSelection(t *testing.T) {
	// Without a margin the request is a discovery; targeting a whole
	// cluster without variant_ids or type:"all" is valid and writes nothing.
	store := pricedStore()
	router := overrideRouter(store)

	w := doJSON(t, router, http.MethodPost, "/pricing/override", gin.H{
		"cluster_ids": []int64{5},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mode":"discovery"`)
	assert.Empty(t, store.updateCalls)
	assert.Empty(t, store.historyCalls)
}

func TestOverrideRejectsVariantIDsWithTypeAll(t *testing.T) {
	router := overrideRouter(pricedStore())

	w := doJSON(t, router, http.MethodPost, "/pricing/override", gin.H{
		"cluster_ids": []int64{5},
		"type":        "all",
		"variant_ids": []int64{10},
		"margin":      10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "mutually exclusive")
}

func TestOverrideRequiresScopeTarget(t *testing.T) {
	router := overrideRouter(pricedStore())

	w := doJSON(t, router, http.MethodPost, "/pricing/override", gin.H{"type": "all"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cluster_ids or facility_ids")
}

func TestOverrideMaxVariantsGuard(t *testing.T) {
	store := pricedStore()
	store.variants = append(store.variants,
		models.ProductVariant{ID: 11, ProductID: 100, Name: "5kg", SKU: "ROZ01-5KG", BasePrice: 450, MRP: 900, ProductName: "Rice"})
	router := overrideRouter(store)

	w := doJSON(t, router, http.MethodPost, "/pricing/override", gin.H{
		"cluster_ids":  []int64{5},
		"type":         "all",
		"margin":       10,
		"max_variants": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "narrow the scope")
}

func TestOverrideUnknownCluster(t *testing.T) {
	router := overrideRouter(pricedStore())

	w := doJSON(t, router, http.MethodPost, "/pricing/override", gin.H{
		"cluster_ids": []int64{99},
		"type":        "all",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Cluster 99 not found")
}

func TestOverrideDiscoveryMode(t *testing.T) {
	store := pricedStore()
	store.latest = map[int64]models.PriceHistory{
		10: {ProductVariantID: 10, NewPrice: 110, ChangeType: models.ChangeOverridePrice, CreatedAt: time.Now()},
	}
	router := overrideRouter(store)

	w := doJSON(t, router, http.MethodPost, "/pricing/override", gin.H{
		"cluster_ids": []int64{5},
		"type":        "all",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Mode            string `json:"mode"`
		TotalFacilities int    `json:"total_facilities"`
		TotalVariants   int    `json:"total_variants"`
		TotalPairs      int    `json:"total_pairs"`
		Variants        []struct {
			VariantID       int64                    `json:"variant_id"`
			SellingPrices   []map[string]interface{} `json:"selling_prices"`
			LastPriceUpdate map[string]interface{}   `json:"last_price_update"`
		} `json:"variants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "discovery", resp.Mode)
	assert.Equal(t, 2, resp.TotalFacilities)
	assert.Equal(t, 1, resp.TotalVariants)
	assert.Equal(t, 2, resp.TotalPairs)
	require.Len(t, resp.Variants, 1)
	assert.Len(t, resp.Variants[0].SellingPrices, 2)
	assert.NotNil(t, resp.Variants[0].LastPriceUpdate)

	// discovery never writes
	assert.Empty(t, store.updateCalls)
	assert.Empty(t, store.historyCalls)
}

func TestOverrideExecutionMode(t *testing.T) {
	store := pricedStore()
	router := overrideRouter(store)

	w := doJSON(t, router, http.MethodPost, "/pricing/override", gin.H{
		"cluster_ids": []int64{5},
		"type":        "all",
		"margin":      10,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Mode                 string `json:"mode"`
		TotalUpdated         int    `json:"total_updated"`
		TotalRejected        int    `json:"total_rejected"`
		PriceHistoryRecorded bool   `json:"price_history_recorded"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "execution", resp.Mode)
	assert.Equal(t, 2, resp.TotalUpdated)
	assert.Equal(t, 0, resp.TotalRejected)
	assert.True(t, resp.PriceHistoryRecorded)

	require.Len(t, store.updateCalls, 1)
	require.Len(t, store.updateCalls[0], 2)
	assert.Equal(t, 110.0, store.updateCalls[0][0].SellingPrice)
	require.Len(t, store.historyCalls, 1)

	h := store.historyCalls[0][0]
	assert.Equal(t, models.ChangeBulkClusterUpdate, h.ChangeType)
	require.NotNil(t, h.ClusterID)
	assert.Equal(t, int64(5), *h.ClusterID)
	assert.Nil(t, h.UserID)
}

func TestOverrideSkipsHistory(t *testing.T) {
	store := pricedStore()
	router := overrideRouter(store)

	w := doJSON(t, router, http.MethodPost, "/pricing/override", gin.H{
		"facility_ids":       []int64{1},
		"variant_ids":        []int64{10},
		"margin":             5,
		"skip_price_history": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"price_history_recorded":false`)
	assert.Empty(t, store.historyCalls)
}

func TestUpdateClusterPriceProductNotFound(t *testing.T) {
	router := overrideRouter(pricedStore())

	w := doJSON(t, router, http.MethodPut, "/products/42/cluster-price", gin.H{
		"cluster_id": 5,
		"margin":     10,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateClusterPrice(t *testing.T) {
	store := pricedStore()
	store.products = map[int64]*models.Product{
		100: {
			ID: 100, Name: "Rice", IsActive: true,
			Variants: []models.ProductVariant{
				{ID: 10, ProductID: 100, Name: "1kg", BasePrice: 100, MRP: 200, SellingPrice: 110},
			},
		},
	}
	router := overrideRouter(store)

	w := doJSON(t, router, http.MethodPut, "/products/100/cluster-price", gin.H{
		"cluster_id": 5,
		"margin":     10,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		TotalUpdated  int `json:"total_updated"`
		TotalRejected int `json:"total_rejected"`
		UpdatedPrices []struct {
			FacilityID int64   `json:"facility_id"`
			NewPrice   float64 `json:"new_price"`
			HistoryID  int64   `json:"history_id"`
		} `json:"updated_prices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalUpdated)
	assert.Equal(t, 0, resp.TotalRejected)
	require.Len(t, resp.UpdatedPrices, 2)
	assert.Equal(t, 110.0, resp.UpdatedPrices[0].NewPrice)
	assert.NotZero(t, resp.UpdatedPrices[0].HistoryID)

	require.Len(t, store.historyCalls, 1)
	assert.Equal(t, models.ChangePercentageUpdate, store.historyCalls[0][0].ChangeType)
}

func TestUpdateClusterPriceInactiveCluster(t *testing.T) {
	store := pricedStore()
	store.clusters[6] = &models.Cluster{ID: 6, Name: "Stale", IsActive: false}
	store.products = map[int64]*models.Product{
		100: {ID: 100, Name: "Rice", Variants: []models.ProductVariant{{ID: 10, BasePrice: 100}}},
	}
	router := overrideRouter(store)

	w := doJSON(t, router, http.MethodPut, "/products/100/cluster-price", gin.H{
		"cluster_id": 6,
		"margin":     10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not active")
}

func TestClusterPriceUpdateStatus(t *testing.T) {
	now := time.Now().UTC().Add(-30 * time.Minute)
	store := pricedStore()
	store.statuses = map[int64]*db.ClusterPriceStatus{
		5: {
			ClusterID:       5,
			LastUpdate:      &now,
			TotalUpdates:    12,
			ProductsUpdated: 3,
			VariantsUpdated: 7,
			Recent:          []models.PriceHistory{{ID: 1}},
		},
	}
	router := overrideRouter(store)

	w := doJSON(t, router, http.MethodPost, "/clusters/price-update-status", gin.H{
		"cluster_ids": []int64{5, 6},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Clusters []struct {
			ClusterID       int64  `json:"cluster_id"`
			HasRecentUpdate bool   `json:"has_recent_update"`
			LastUpdateAgo   string `json:"last_update_ago"`
			Statistics      struct {
				TotalPriceUpdates int64 `json:"total_price_updates"`
			} `json:"statistics"`
			RecentUpdates []models.PriceHistory `json:"recent_updates"`
		} `json:"clusters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Clusters, 2)

	active := resp.Clusters[0]
	assert.Equal(t, int64(5), active.ClusterID)
	assert.True(t, active.HasRecentUpdate)
	assert.Equal(t, "30 minutes ago", active.LastUpdateAgo)
	assert.Equal(t, int64(12), active.Statistics.TotalPriceUpdates)
	assert.Len(t, active.RecentUpdates, 1)

	idle := resp.Clusters[1]
	assert.Equal(t, int64(6), idle.ClusterID)
	assert.False(t, idle.HasRecentUpdate)
	assert.Empty(t, idle.RecentUpdates)
}

func TestClusterPriceUpdateStatusSingleCluster(t *testing.T) {
	store := pricedStore()
	router := overrideRouter(store)

	w := doJSON(t, router, http.MethodPost, "/clusters/price-update-status", gin.H{
		"cluster_id": 5,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cluster_id":5`)

	w = doJSON(t, router, http.MethodPost, "/clusters/price-update-status", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimeAgo(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", timeAgo(now, now.Add(-20*time.Second)))
	assert.Equal(t, "1 minute ago", timeAgo(now, now.Add(-90*time.Second)))
	assert.Equal(t, "5 hours ago", timeAgo(now, now.Add(-5*time.Hour)))
	assert.Equal(t, "2 days ago", timeAgo(now, now.Add(-49*time.Hour)))
}
