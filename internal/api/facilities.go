package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rozanalabs/catalog-service/internal/db"
	"github.com/rozanalabs/catalog-service/internal/models"
)

type facilityPayload struct {
	Name         string  `json:"name" validate:"required"`
	FacilityType string  `json:"facility_type" validate:"required,facilitytype"`
	Address      string  `json:"address"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	Country      string  `json:"country"`
	Pincode      string  `json:"pincode"`
	Email        *string `json:"email" validate:"omitempty,email"`
	PhoneNumber  *string `json:"phone_number"`
	ManagerIDs   []int64 `json:"manager_ids"`
}

func (p *facilityPayload) toModel() *models.Facility {
	return &models.Facility{
		Name:         p.Name,
		FacilityType: models.FacilityType(p.FacilityType),
		Address:      p.Address,
		City:         p.City,
		State:        p.State,
		Country:      p.Country,
		Pincode:      p.Pincode,
		Email:        p.Email,
		PhoneNumber:  p.PhoneNumber,
		IsActive:     true,
		ManagerIDs:   p.ManagerIDs,
	}
}

// CreateFacility handles POST /api/v1/facilities.
func (h *Handler) CreateFacility(c *gin.Context) {
	var payload facilityPayload
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

	facility := payload.toModel()
	id, err := h.store.CreateFacility(ctx, facility)
	if err != nil {
		if errors.Is(err, db.ErrManagerAssigned) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[CreateFacility] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create facility"})
		return
	}

	created, err := h.store.GetFacility(ctx, id)
	if err != nil {
		log.Printf("[CreateFacility] reload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load created facility"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetFacilities handles GET /api/v1/facilities.
func (h *Handler) GetFacilities(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	limit, offset := h.pagination(c)
	activeOnly := c.DefaultQuery("include_inactive", "false") != "true"

	facilities, err := h.store.ListFacilities(ctx, activeOnly, limit, offset)
	if err != nil {
		log.Printf("[GetFacilities] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch facilities"})
		return
	}
	if facilities == nil {
		facilities = []models.Facility{}
	}
	c.JSON(http.StatusOK, gin.H{"facilities": facilities, "count": len(facilities)})
}

// GetFacility handles GET /api/v1/facilities/:id.
func (h *Handler) GetFacility(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	facility, err := h.store.GetFacility(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Facility not found"})
			return
		}
		log.Printf("[GetFacility] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch facility"})
		return
	}
	c.JSON(http.StatusOK, facility)
}

// UpdateFacility handles PUT /api/v1/facilities/:id.
func (h *Handler) UpdateFacility(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var payload facilityPayload
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

	facility := payload.toModel()
	facility.ID = id
	if err := h.store.UpdateFacility(ctx, facility); err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Facility not found"})
		case errors.Is(err, db.ErrManagerAssigned):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			log.Printf("[UpdateFacility] %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update facility"})
		}
		return
	}

	updated, err := h.store.GetFacility(ctx, id)
	if err != nil {
		log.Printf("[UpdateFacility] reload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load updated facility"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteFacility handles DELETE /api/v1/facilities/:id.
func (h *Handler) DeleteFacility(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.store.DeleteFacility(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Facility not found"})
			return
		}
		log.Printf("[DeleteFacility] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete facility"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Facility deleted"})
}

// GetFacilityInventory handles GET /api/v1/facilities/:id/inventory.
func (h *Handler) GetFacilityInventory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	limit, offset := h.pagination(c)
	inventories, err := h.store.InventoriesForFacility(ctx, id, limit, offset)
	if err != nil {
		log.Printf("[GetFacilityInventory] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch inventory"})
		return
	}
	if inventories == nil {
		inventories = []models.FacilityInventory{}
	}
	c.JSON(http.StatusOK, gin.H{"inventory": inventories, "count": len(inventories)})
}

type clusterPayload struct {
	Name        string  `json:"name" validate:"required"`
	Region      *string `json:"region"`
	FacilityIDs []int64 `json:"facility_ids"`
}

func (p *clusterPayload) toModel() *models.Cluster {
	return &models.Cluster{
		Name:        p.Name,
		Region:      p.Region,
		IsActive:    true,
		FacilityIDs: p.FacilityIDs,
	}
}

// CreateCluster handles POST /api/v1/clusters.
func (h *Handler) CreateCluster(c *gin.Context) {
	var payload clusterPayload
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

	id, err := h.store.CreateCluster(ctx, payload.toModel())
	if err != nil {
		log.Printf("[CreateCluster] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create cluster"})
		return
	}

	created, err := h.store.GetCluster(ctx, id)
	if err != nil {
		log.Printf("[CreateCluster] reload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load created cluster"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetClusters handles GET /api/v1/clusters.
func (h *Handler) GetClusters(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	limit, offset := h.pagination(c)
	activeOnly := c.DefaultQuery("include_inactive", "false") != "true"

	clusters, err := h.store.ListClusters(ctx, activeOnly, limit, offset)
	if err != nil {
		log.Printf("[GetClusters] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch clusters"})
		return
	}
	if clusters == nil {
		clusters = []models.Cluster{}
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "count": len(clusters)})
}

// GetCluster handles GET /api/v1/clusters/:id.
func (h *Handler) GetCluster(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	cluster, err := h.store.GetCluster(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cluster not found"})
			return
		}
		log.Printf("[GetCluster] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cluster"})
		return
	}
	c.JSON(http.StatusOK, cluster)
}

// UpdateCluster handles PUT /api/v1/clusters/:id.
func (h *Handler) UpdateCluster(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var payload clusterPayload
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

	cluster := payload.toModel()
	cluster.ID = id
	if err := h.store.UpdateCluster(ctx, cluster); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cluster not found"})
			return
		}
		log.Printf("[UpdateCluster] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cluster"})
		return
	}

	updated, err := h.store.GetCluster(ctx, id)
	if err != nil {
		log.Printf("[UpdateCluster] reload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load updated cluster"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteCluster handles DELETE /api/v1/clusters/:id.
func (h *Handler) DeleteCluster(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.store.DeleteCluster(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cluster not found"})
			return
		}
		log.Printf("[DeleteCluster] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete cluster"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cluster deleted"})
}
