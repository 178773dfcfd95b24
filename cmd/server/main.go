package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/rozanalabs/catalog-service/internal/api"
	"github.com/rozanalabs/catalog-service/internal/config"
	"github.com/rozanalabs/catalog-service/internal/db"
	"github.com/rozanalabs/catalog-service/internal/logging"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Catalog Service starting (GIT_SHA=%s BUILD_TIME=%s)", os.Getenv("GIT_SHA"), os.Getenv("BUILD_TIME"))

	// Initialize database connection (non-fatal; allow process to start for /live)
	database, err := db.New(cfg.DB)
	if err != nil {
		log.Printf("[WARN] Database initialization failed at startup: %v", err)
	}
	if database != nil {
		defer database.Close()
	}

	handler := api.NewHandler(database, cfg)

	router := setupRouter(handler, cfg)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}

func setupRouter(handler *api.Handler, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	router := gin.New()

	router.Use(logging.RequestID())
	router.Use(logging.JSONLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Health and readiness endpoints
	router.GET("/live", func(c *gin.Context) { c.Status(200) })
	router.GET("/ready", handler.Health)
	router.GET("/health", handler.Health)

	v1 := router.Group("/api/v1")
	{
		// Parse JWT if present to expose role info for read endpoints
		v1.Use(api.OptionalAuthMiddleware(cfg.JWTSecret))

		// Public catalog reads
		v1.GET("/products", handler.GetProducts)
		v1.GET("/products/:id", handler.GetProduct)
		v1.GET("/categories", handler.GetCategories)
		v1.GET("/brands", handler.GetBrands)
		v1.GET("/combos", handler.GetCombos)
		v1.GET("/combos/:id", handler.GetCombo)

		// Protected admin endpoints
		admin := v1.Group("")
		admin.Use(api.AuthMiddleware(cfg.JWTSecret), api.AdminMiddleware())
		{
			admin.POST("/products", handler.CreateProduct)
			admin.PUT("/products/:id", handler.UpdateProduct)
			admin.DELETE("/products/:id", handler.DeleteProduct)
			admin.PUT("/products/:id/cluster-price", handler.UpdateClusterPrice)

			admin.POST("/combos", handler.CreateCombo)
			admin.DELETE("/combos/:id", handler.DeleteCombo)

			admin.GET("/facilities", handler.GetFacilities)
			admin.POST("/facilities", handler.CreateFacility)
			admin.GET("/facilities/:id", handler.GetFacility)
			admin.PUT("/facilities/:id", handler.UpdateFacility)
			admin.DELETE("/facilities/:id", handler.DeleteFacility)
			admin.GET("/facilities/:id/inventory", handler.GetFacilityInventory)

			admin.GET("/clusters", handler.GetClusters)
			admin.POST("/clusters", handler.CreateCluster)
			admin.GET("/clusters/:id", handler.GetCluster)
			admin.PUT("/clusters/:id", handler.UpdateCluster)
			admin.DELETE("/clusters/:id", handler.DeleteCluster)
			admin.POST("/clusters/price-update-status", handler.ClusterPriceUpdateStatus)

			admin.POST("/pricing/override", handler.OverridePrices)
			admin.GET("/price-history", handler.GetPriceHistory)
		}
	}

	// Root endpoint for basic info
	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service": "catalog-service",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	return router
}

// corsMiddleware adds CORS headers to allow cross-origin requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Request-Id")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
