package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/rozanalabs/catalog-service/internal/assembly"
	"github.com/rozanalabs/catalog-service/internal/config"
	"github.com/rozanalabs/catalog-service/internal/db"
	"github.com/rozanalabs/catalog-service/internal/models"
	"github.com/rozanalabs/catalog-service/internal/pricing"
)

// Store is the full persistence surface the handlers depend on.
// *db.Database implements it; tests substitute fakes.
type Store interface {
	Health(ctx context.Context) error

	CreateProduct(ctx context.Context, p *models.Product, plan *assembly.Plan) (int64, error)
	UpdateProduct(ctx context.Context, p *models.Product, plan *assembly.Plan) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, filter db.ProductListFilter, limit, offset int) ([]models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	VariantsForProduct(ctx context.Context, productID int64, activeOnly bool) ([]models.ProductVariant, error)
	ExistingVariantLinks(ctx context.Context, productID int64) (map[string]int64, error)
	ComboFlags(ctx context.Context, ids []int64) (map[int64]bool, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListBrands(ctx context.Context) ([]models.Brand, error)

	CreateCombo(ctx context.Context, combo *models.ComboProduct) (int64, error)
	GetCombo(ctx context.Context, id int64) (*models.ComboProduct, error)
	ListCombos(ctx context.Context, activeOnly bool, limit, offset int) ([]models.ComboProduct, error)
	DeactivateCombo(ctx context.Context, id int64) error

	CreateFacility(ctx context.Context, f *models.Facility) (int64, error)
	GetFacility(ctx context.Context, id int64) (*models.Facility, error)
	ListFacilities(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Facility, error)
	UpdateFacility(ctx context.Context, f *models.Facility) error
	DeleteFacility(ctx context.Context, id int64) error
	InventoriesForFacility(ctx context.Context, facilityID int64, limit, offset int) ([]models.FacilityInventory, error)

	CreateCluster(ctx context.Context, c *models.Cluster) (int64, error)
	GetCluster(ctx context.Context, id int64) (*models.Cluster, error)
	ListClusters(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Cluster, error)
	UpdateCluster(ctx context.Context, c *models.Cluster) error
	DeleteCluster(ctx context.Context, id int64) error

	pricing.ScopeStore
	pricing.ClusterStore

	ListPriceHistory(ctx context.Context, f models.PriceHistoryFilter, limit, offset int) ([]models.PriceHistory, int64, error)
	LatestHistoryForVariants(ctx context.Context, variantIDs []int64) (map[int64]models.PriceHistory, error)
	ClusterPriceStatuses(ctx context.Context, clusterIDs []int64) (map[int64]*db.ClusterPriceStatus, error)
}

// Handler holds dependencies for all API handlers.
type Handler struct {
	store       Store
	engine      *pricing.Engine
	validate    *validator.Validate
	maxPageSize int
	maxVariants int
}

// NewHandler creates a new handler instance.
func NewHandler(store Store, cfg *config.Config) *Handler {
	return &Handler{
		store:       store,
		engine:      pricing.NewEngine(store, cfg.Pricing.BatchSize),
		validate:    newValidator(),
		maxPageSize: cfg.Pricing.MaxPageSize,
		maxVariants: cfg.Pricing.MaxVariants,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("facilitytype", func(fl validator.FieldLevel) bool {
		return models.FacilityType(fl.Field().String()).Valid()
	})
	return v
}

// Health handles GET /health requests.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "Database connection failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "catalog-service",
	})
}

// pagination extracts page/page_size query params with sane bounds.
func (h *Handler) pagination(c *gin.Context) (limit, offset int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if err != nil || size < 1 {
		size = 50
	}
	if size > h.maxPageSize {
		size = h.maxPageSize
	}
	return size, (page - 1) * size
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}
