package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rozanalabs/catalog-service/internal/assembly"
	"github.com/rozanalabs/catalog-service/internal/db"
	"github.com/rozanalabs/catalog-service/internal/models"
)

type variantPayload struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Link *string `json:"link"`

	BasePrice    float64 `json:"base_price" validate:"gte=0"`
	MRP          float64 `json:"mrp" validate:"gte=0"`
	SellingPrice float64 `json:"selling_price" validate:"gte=0"`

	Tax  float64 `json:"tax"`
	CGST float64 `json:"cgst"`
	SGST float64 `json:"sgst"`
	IGST float64 `json:"igst"`
	Cess float64 `json:"cess"`

	Weight     *string           `json:"weight"`
	Attributes models.Attributes `json:"attributes"`

	IsPack  bool `json:"is_pack"`
	PackQty int  `json:"pack_qty"`

	IsPublished bool `json:"is_published"`

	CustomFields []assembly.CustomFieldValue `json:"custom_fields"`
	SizeChart    []assembly.SizeChartValue   `json:"size_chart"`
}

type productPayload struct {
	Name        string           `json:"name" validate:"required"`
	SKU         string           `json:"sku"`
	Description *string          `json:"description"`
	Tags        []string         `json:"tags"`
	CategoryID  int64            `json:"category_id" validate:"required,gt=0"`
	BrandID     *int64           `json:"brand_id"`
	IsPublished bool             `json:"is_published"`
	Variants    []variantPayload `json:"variants" validate:"dive"`
}

func (p *productPayload) toModel() *models.Product {
	return &models.Product{
		Name:        p.Name,
		SKU:         p.SKU,
		Description: p.Description,
		Tags:        p.Tags,
		CategoryID:  p.CategoryID,
		BrandID:     p.BrandID,
		IsPublished: p.IsPublished,
		IsActive:    true,
	}
}

func (p *productPayload) toInputs() []assembly.VariantInput {
	inputs := make([]assembly.VariantInput, 0, len(p.Variants))
	for _, vp := range p.Variants {
		inputs = append(inputs, assembly.VariantInput{
			ID:      vp.ID,
			Link:    vp.Link,
			IsPack:  vp.IsPack,
			PackQty: vp.PackQty,
			Variant: models.ProductVariant{
				ID:           vp.ID,
				Name:         vp.Name,
				BasePrice:    vp.BasePrice,
				MRP:          vp.MRP,
				SellingPrice: vp.SellingPrice,
				Tax:          vp.Tax,
				CGST:         vp.CGST,
				SGST:         vp.SGST,
				IGST:         vp.IGST,
				Cess:         vp.Cess,
				Weight:       vp.Weight,
				Attributes:   vp.Attributes,
				IsPack:       vp.IsPack,
				PackQty:      vp.PackQty,
				IsPublished:  vp.IsPublished,
				IsActive:     true,
			},
			CustomFields: vp.CustomFields,
			SizeChart:    vp.SizeChart,
		})
	}
	return inputs
}

// CreateProduct handles POST /api/v1/products.
func (h *Handler) CreateProduct(c *gin.Context) {
	var payload productPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.validate.Struct(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	plan, err := assembly.BuildPlan(payload.toInputs(), nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	product := payload.toModel()
	id, err := h.store.CreateProduct(ctx, product, plan)
	if err != nil {
		log.Printf("[CreateProduct] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}

	created, err := h.store.GetProduct(ctx, id)
	if err != nil {
		log.Printf("[CreateProduct] reload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load created product"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"product":  created,
		"warnings": plan.Warnings,
	})
}

// UpdateProduct handles PUT /api/v1/products/:id.
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var payload productPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.validate.Struct(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	existing, err := h.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		log.Printf("[UpdateProduct] load: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		return
	}

	links, err := h.store.ExistingVariantLinks(ctx, id)
	if err != nil {
		log.Printf("[UpdateProduct] links: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product variants"})
		return
	}

	plan, err := assembly.BuildPlan(payload.toInputs(), links)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product := payload.toModel()
	product.ID = id
	if product.SKU == "" {
		product.SKU = existing.SKU
	}
	if err := h.store.UpdateProduct(ctx, product, plan); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		log.Printf("[UpdateProduct] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
		return
	}

	updated, err := h.store.GetProduct(ctx, id)
	if err != nil {
		log.Printf("[UpdateProduct] reload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load updated product"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product":  updated,
		"warnings": plan.Warnings,
	})
}

// GetProducts handles GET /api/v1/products.
func (h *Handler) GetProducts(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	limit, offset := h.pagination(c)
	filter := db.ProductListFilter{
		ActiveOnly: c.DefaultQuery("include_inactive", "false") != "true",
		CategoryID: queryInt64(c, "category_id"),
		BrandID:    queryInt64(c, "brand_id"),
		Name:       c.Query("name"),
		Rejected:   c.Query("rejected") == "true",
	}

	products, err := h.store.ListProducts(ctx, filter, limit, offset)
	if err != nil {
		log.Printf("[GetProducts] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

// GetProduct handles GET /api/v1/products/:id.
func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	product, err := h.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		log.Printf("[GetProduct] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/v1/products/:id.
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.store.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		log.Printf("[DeleteProduct] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

// GetCategories handles GET /api/v1/categories.
func (h *Handler) GetCategories(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	categories, err := h.store.ListCategories(ctx)
	if err != nil {
		log.Printf("[GetCategories] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// GetBrands handles GET /api/v1/brands.
func (h *Handler) GetBrands(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	brands, err := h.store.ListBrands(ctx)
	if err != nil {
		log.Printf("[GetBrands] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch brands"})
		return
	}
	if brands == nil {
		brands = []models.Brand{}
	}
	c.JSON(http.StatusOK, gin.H{"brands": brands})
}

type comboPayload struct {
	ComboVariantID int64                     `json:"combo_variant_id" validate:"required,gt=0"`
	Name           string                    `json:"name" validate:"required"`
	Description    *string                   `json:"description"`
	Items          []assembly.ComboItemInput `json:"items"`
}

// CreateCombo handles POST /api/v1/combos.
func (h *Handler) CreateCombo(c *gin.Context) {
	var payload comboPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.validate.Struct(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	ids := []int64{payload.ComboVariantID}
	for _, item := range payload.Items {
		ids = append(ids, item.VariantID)
	}
	flags, err := h.store.ComboFlags(ctx, ids)
	if err != nil {
		log.Printf("[CreateCombo] flags: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate combo"})
		return
	}
	for _, id := range ids {
		if _, ok := flags[id]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown variant", "variant_id": id})
			return
		}
	}

	if err := assembly.ValidateCombo(payload.ComboVariantID, payload.Items, flags); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	combo := &models.ComboProduct{
		ComboVariantID: payload.ComboVariantID,
		Name:           payload.Name,
		Description:    payload.Description,
		IsActive:       true,
	}
	for _, item := range payload.Items {
		combo.Items = append(combo.Items, models.ComboProductItem{
			ProductVariantID: item.VariantID,
			Quantity:         item.Quantity,
		})
	}

	id, err := h.store.CreateCombo(ctx, combo)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Combo variant not found"})
			return
		}
		log.Printf("[CreateCombo] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create combo"})
		return
	}

	created, err := h.store.GetCombo(ctx, id)
	if err != nil {
		log.Printf("[CreateCombo] reload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load created combo"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetCombos handles GET /api/v1/combos.
func (h *Handler) GetCombos(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	limit, offset := h.pagination(c)
	combos, err := h.store.ListCombos(ctx, true, limit, offset)
	if err != nil {
		log.Printf("[GetCombos] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch combos"})
		return
	}
	if combos == nil {
		combos = []models.ComboProduct{}
	}
	c.JSON(http.StatusOK, gin.H{"combos": combos, "count": len(combos)})
}

// GetCombo handles GET /api/v1/combos/:id.
func (h *Handler) GetCombo(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	combo, err := h.store.GetCombo(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Combo not found"})
			return
		}
		log.Printf("[GetCombo] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch combo"})
		return
	}
	c.JSON(http.StatusOK, combo)
}

// DeleteCombo handles DELETE /api/v1/combos/:id.
func (h *Handler) DeleteCombo(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.store.DeactivateCombo(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Combo not found"})
			return
		}
		log.Printf("[DeleteCombo] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete combo"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Combo deleted"})
}
