package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/config"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/handler"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/middleware"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/pkg/logger"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/service"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize object storage
	storage, err := service.NewMinioStorage(&cfg.Minio)
	if err != nil {
		slog.Error("failed to initialize MINIO storage", "error", err)
		os.Exit(1)
	}

	// Ensure bucket exists
	if err := storage.EnsureBucket(context.Background()); err != nil {
		slog.Error("failed to ensure MINIO bucket", "error", err)
		os.Exit(1)
	}

	// Initialize the datastore
	st, err := newStore(cfg)
	if err != nil {
		slog.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}

	// Wire the extraction pipeline
	engine := service.NewDocintelClient(&cfg.Engine)
	runner := service.NewJobRunner(engine, cfg.Pipeline.PollInterval(), cfg.Pipeline.CallTimeout())
	extractor := service.NewPhaseExtractor(runner, cfg.Pipeline.PhaseTimeout(), cfg.Pipeline.MaxAttempts, cfg.Pipeline.RetryDelay())
	pipeline := service.NewPipeline(extractor)
	writer := service.NewWriter(st)
	reconciler := service.NewReconciler(st)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	licenseHandler := handler.NewLicenseHandler(storage, pipeline, writer, reconciler, st)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(corsMiddleware())                       // CORS
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/licenses/process", licenseHandler.Process)
		protected.GET("/licenses", licenseHandler.List)
		protected.GET("/licenses/:id", licenseHandler.Get)
		protected.GET("/licenses/:id/status", licenseHandler.GetStatus)
		protected.GET("/licenses/:id/conditions", licenseHandler.Conditions)
		protected.GET("/licenses/:id/alerts", licenseHandler.Alerts)
		protected.DELETE("/licenses/:id", licenseHandler.Delete)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute, // upload runs the extraction pipeline synchronously
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// newStore builds the configured datastore backend.
func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		slog.Info("using in-memory store")
		return store.NewMemory(), nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pg, err := store.NewPostgres(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		slog.Info("using postgres store")
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
