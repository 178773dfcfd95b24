package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rozanalabs/catalog-service/internal/db"
	"github.com/rozanalabs/catalog-service/internal/models"
	"github.com/rozanalabs/catalog-service/internal/pricing"
)

type overrideRequest struct {
	ClusterIDs  []int64 `json:"cluster_ids"`
	FacilityIDs []int64 `json:"facility_ids"`

	// Either variant_ids or type:"all", never both.
	Type       string  `json:"type"`
	VariantIDs []int64 `json:"variant_ids"`

	CategoryIDs []int64 `json:"category_ids"`
	BrandIDs    []int64 `json:"brand_ids"`
	ProductName string  `json:"product_name"`
	VariantName string  `json:"variant_name"`

	// A nil margin selects discovery mode: resolve and report, change nothing.
	Margin           *float64 `json:"margin"`
	SkipPriceHistory bool     `json:"skip_price_history"`
	ChangeReason     string   `json:"change_reason"`
	MaxVariants      int      `json:"max_variants"`

	// Discovery-mode pagination of the variant sample.
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// OverridePrices handles POST /api/v1/pricing/override. Without a margin the
// request is a discovery: the resolved scope is returned with current prices
// and nothing is written. With a margin it executes the percentage update
// over every (facility, variant) pair in scope.
func (h *Handler) OverridePrices(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	// The variant_ids / type:"all" requirement only applies to execution
	// mode; a margin-less discovery may target a whole cluster or facility.
	if req.Margin != nil {
		if len(req.VariantIDs) == 0 && req.Type != "all" {
			c.JSON(http.StatusBadRequest, gin.H{"error": `Either variant_ids or type:"all" is required`})
			return
		}
		if len(req.VariantIDs) > 0 && req.Type == "all" {
			c.JSON(http.StatusBadRequest, gin.H{"error": `variant_ids and type:"all" are mutually exclusive`})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	for _, clusterID := range req.ClusterIDs {
		if _, err := h.store.GetCluster(ctx, clusterID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Cluster %d not found", clusterID)})
				return
			}
			log.Printf("[OverridePrices] cluster check: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate clusters"})
			return
		}
	}

	scope, err := pricing.ResolveScope(ctx, h.store, pricing.ScopeRequest{
		ClusterIDs:  req.ClusterIDs,
		FacilityIDs: req.FacilityIDs,
		Filter: pricing.VariantFilter{
			VariantIDs:  req.VariantIDs,
			CategoryIDs: req.CategoryIDs,
			BrandIDs:    req.BrandIDs,
			ProductName: req.ProductName,
			VariantName: req.VariantName,
		},
	})
	if err != nil {
		if errors.Is(err, pricing.ErrNoTarget) || errors.Is(err, pricing.ErrNoFacilities) || errors.Is(err, pricing.ErrNoVariants) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[OverridePrices] scope: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve scope"})
		return
	}

	if req.Margin == nil {
		h.discoverPrices(ctx, c, scope, req.Page, req.PageSize)
		return
	}

	maxVariants := h.maxVariants
	if req.MaxVariants > 0 && req.MaxVariants < maxVariants {
		maxVariants = req.MaxVariants
	}
	if len(scope.Variants) > maxVariants {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          fmt.Sprintf("Scope matches %d variants, limit is %d; narrow the scope", len(scope.Variants), maxVariants),
			"total_variants": len(scope.Variants),
			"max_variants":   maxVariants,
		})
		return
	}

	changeType := models.ChangeOverridePrice
	var clusterID *int64
	if len(req.FacilityIDs) > 0 {
		if len(req.VariantIDs) == 0 {
			changeType = models.ChangeBulkFacilityUpdate
		}
	} else if len(req.ClusterIDs) > 0 {
		if len(req.VariantIDs) == 0 {
			changeType = models.ChangeBulkClusterUpdate
		}
		if len(req.ClusterIDs) == 1 {
			clusterID = &req.ClusterIDs[0]
		}
	}

	changeReason := req.ChangeReason
	if changeReason == "" {
		changeReason = fmt.Sprintf("Price override of %v%% applied", *req.Margin)
	}

	result, err := h.engine.Run(ctx, pricing.RunParams{
		Scope:        scope,
		Margin:       *req.Margin,
		Actor:        CurrentActor(c),
		ClusterID:    clusterID,
		ChangeType:   changeType,
		ChangeReason: changeReason,
		SkipHistory:  req.SkipPriceHistory,
	})
	if err != nil {
		log.Printf("[OverridePrices] run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Price update failed"})
		return
	}

	updated := result.Updated
	if updated == nil {
		updated = []pricing.VariantOutcome{}
	}
	rejected := result.Rejected
	if rejected == nil {
		rejected = []pricing.Rejection{}
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":                   "execution",
		"margin":                 *req.Margin,
		"total_variants_found":   result.TotalFound,
		"total_processed":        result.TotalProcessed,
		"total_updated":          result.TotalUpdated,
		"total_rejected":         result.TotalRejected,
		"updated_variants":       updated,
		"rejected_variants":      rejected,
		"price_history_recorded": result.HistoryRecorded,
	})
}

// discoverPrices reports the resolved scope with current per-facility prices
// and each variant's most recent audit entry. The variant sample is paginated;
// totals stay exact.
func (h *Handler) discoverPrices(ctx context.Context, c *gin.Context, scope *pricing.Scope, page, pageSize int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > h.maxPageSize {
		pageSize = h.maxPageSize
	}

	inventories, err := h.store.InventoriesFor(ctx, scope.FacilityIDs(), scope.VariantIDs())
	if err != nil {
		log.Printf("[OverridePrices] discovery inventories: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load inventories"})
		return
	}
	latest, err := h.store.LatestHistoryForVariants(ctx, scope.VariantIDs())
	if err != nil {
		log.Printf("[OverridePrices] discovery history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load price history"})
		return
	}

	byVariant := make(map[int64][]gin.H)
	for _, inv := range inventories {
		byVariant[inv.ProductVariantID] = append(byVariant[inv.ProductVariantID], gin.H{
			"facility_id":   inv.FacilityID,
			"selling_price": inv.SellingPrice,
			"stock":         inv.Stock,
		})
	}

	start := (page - 1) * pageSize
	if start > len(scope.Variants) {
		start = len(scope.Variants)
	}
	end := start + pageSize
	if end > len(scope.Variants) {
		end = len(scope.Variants)
	}

	variants := make([]gin.H, 0, end-start)
	for i := start; i < end; i++ {
		v := &scope.Variants[i]
		entry := gin.H{
			"variant_id":     v.ID,
			"variant_name":   v.Name,
			"sku":            v.SKU,
			"product_id":     v.ProductID,
			"product_name":   v.ProductName,
			"base_price":     v.BasePrice,
			"mrp":            v.MRP,
			"selling_prices": byVariant[v.ID],
		}
		if last, ok := latest[v.ID]; ok {
			entry["last_price_update"] = gin.H{
				"new_price":   last.NewPrice,
				"change_type": last.ChangeType,
				"changed_at":  last.CreatedAt,
			}
		}
		variants = append(variants, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":             "discovery",
		"total_facilities": len(scope.Facilities),
		"total_variants":   len(scope.Variants),
		"total_pairs":      scope.PairCount(),
		"page":             page,
		"page_size":        pageSize,
		"variants":         variants,
	})
}

type clusterPriceRequest struct {
	ClusterID int64    `json:"cluster_id" validate:"required,gt=0"`
	Margin    *float64 `json:"margin" validate:"required"`
}

// UpdateClusterPrice handles PUT /api/v1/products/:id/cluster-price. It
// applies a percentage margin to one product's active variants across every
// facility of a cluster, creating inventory rows where missing.
func (h *Handler) UpdateClusterPrice(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	var req clusterPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	product, err := h.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		log.Printf("[UpdateClusterPrice] product: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		return
	}
	if len(product.Variants) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Product has no active variants"})
		return
	}

	cluster, err := h.store.GetCluster(ctx, req.ClusterID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cluster not found"})
			return
		}
		log.Printf("[UpdateClusterPrice] cluster: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cluster"})
		return
	}
	if !cluster.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cluster is not active"})
		return
	}

	facilities, err := h.store.ActiveFacilitiesInClusters(ctx, []int64{cluster.ID})
	if err != nil {
		log.Printf("[UpdateClusterPrice] facilities: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cluster facilities"})
		return
	}
	if len(facilities) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cluster has no active facilities"})
		return
	}

	result, err := pricing.RunClusterProduct(ctx, h.store, pricing.ClusterProductParams{
		Product:    product,
		Variants:   product.Variants,
		Cluster:    cluster,
		Facilities: facilities,
		Margin:     *req.Margin,
		Actor:      CurrentActor(c),
	})
	if err != nil {
		log.Printf("[UpdateClusterPrice] run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Price update failed"})
		return
	}

	updated := result.Updated
	if updated == nil {
		updated = []pricing.ClusterPriceRecord{}
	}
	rejected := result.Rejected
	if rejected == nil {
		rejected = []pricing.Rejection{}
	}
	c.JSON(http.StatusOK, gin.H{
		"message":           fmt.Sprintf("Price updated by %v%% for cluster %s", *req.Margin, cluster.Name),
		"product_id":        product.ID,
		"cluster_id":        cluster.ID,
		"margin":            *req.Margin,
		"updated_prices":    updated,
		"rejected_variants": rejected,
		"total_updated":     len(updated),
		"total_rejected":    len(rejected),
	})
}

type clusterStatusRequest struct {
	ClusterID  int64   `json:"cluster_id"`
	ClusterIDs []int64 `json:"cluster_ids"`
}

// ClusterPriceUpdateStatus handles POST /api/v1/clusters/price-update-status.
// It takes a single cluster_id or a cluster_ids batch.
func (h *Handler) ClusterPriceUpdateStatus(c *gin.Context) {
	var req clusterStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.ClusterID > 0 {
		req.ClusterIDs = append(req.ClusterIDs, req.ClusterID)
	}
	if len(req.ClusterIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cluster_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	statuses, err := h.store.ClusterPriceStatuses(ctx, req.ClusterIDs)
	if err != nil {
		log.Printf("[ClusterPriceUpdateStatus] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cluster status"})
		return
	}

	now := time.Now().UTC()
	out := make([]gin.H, 0, len(req.ClusterIDs))
	for _, id := range req.ClusterIDs {
		s := statuses[id]
		if s == nil {
			s = &db.ClusterPriceStatus{ClusterID: id}
		}
		entry := gin.H{
			"cluster_id":        id,
			"has_recent_update": false,
			"statistics": gin.H{
				"total_price_updates":  s.TotalUpdates,
				"products_updated":     s.ProductsUpdated,
				"variants_updated":     s.VariantsUpdated,
				"distinct_percentages": s.PercentagesUsed,
			},
		}
		if s.LastUpdate != nil {
			entry["has_recent_update"] = now.Sub(*s.LastUpdate) <= 24*time.Hour
			entry["last_update"] = s.LastUpdate.UTC().Format(time.RFC3339)
			entry["last_update_ago"] = timeAgo(now, *s.LastUpdate)
		}
		if len(s.Recent) > 0 {
			entry["last_margin"] = s.Recent[0].PercentageChange
			entry["last_updated_by"] = s.Recent[0].UserID
		}
		recent := s.Recent
		if recent == nil {
			recent = []models.PriceHistory{}
		}
		entry["recent_updates"] = recent
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{"clusters": out})
}

// timeAgo humanizes the distance between now and t.
func timeAgo(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		hs := int(d.Hours())
		if hs == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hs)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// GetPriceHistory handles GET /api/v1/price-history.
func (h *Handler) GetPriceHistory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	var filter models.PriceHistoryFilter
	filter.ProductID = queryInt64(c, "product_id")
	filter.ClusterID = queryInt64(c, "cluster_id")
	filter.FacilityID = queryInt64(c, "facility_id")
	filter.UserID = queryInt64(c, "user_id")

	if v := c.Query("start_date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date"})
			return
		}
		filter.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date"})
			return
		}
		filter.EndDate = &t
	}

	limit, offset := h.pagination(c)
	history, total, err := h.store.ListPriceHistory(ctx, filter, limit, offset)
	if err != nil {
		log.Printf("[GetPriceHistory] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch price history"})
		return
	}
	if history == nil {
		history = []models.PriceHistory{}
	}

	c.JSON(http.StatusOK, gin.H{
		"history":   history,
		"total":     total,
		"page_size": limit,
	})
}

func queryInt64(c *gin.Context, key string) int64 {
	v, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil || v < 1 {
		return 0
	}
	return v
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
