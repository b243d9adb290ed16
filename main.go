package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"registration-service/internal/background"
	"registration-service/internal/config"
	"registration-service/internal/handlers"
	"registration-service/internal/middleware"
	"registration-service/internal/models"
	natsClient "registration-service/internal/nats"
	"registration-service/internal/processor"
	"registration-service/internal/redis"
	"registration-service/internal/repository"
	"registration-service/internal/services"
)

func main() {
	// Load configuration
	cfg := config.New()

	// Initialize database connection
	db, err := initDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Auto-migrate models
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize Redis connection. Sessions and intent refs live there, so
	// the service cannot run without it.
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis successfully")

	// Initialize NATS connection for event publishing
	var nc *natsClient.Client
	nc, err = natsClient.NewClient(nil) // Uses NATS_URL env var or default
	if err != nil {
		log.Printf("Warning: Failed to connect to NATS: %v", err)
		log.Println("Event publishing will be disabled")
		nc = nil
	} else {
		log.Println("Connected to NATS successfully")
		defer nc.Close()
	}

	// Select the payment processor. Without a Stripe key (local dev, CI)
	// the mock processor stands in.
	var proc processor.PaymentProcessor
	if cfg.Stripe.SecretKey != "" {
		proc = processor.NewStripeProcessor(cfg.Stripe.SecretKey)
		log.Println("Stripe payment processor initialized")
	} else {
		proc = processor.NewMockProcessor()
		log.Println("Warning: STRIPE_SECRET_KEY not set - using mock payment processor")
	}

	// Initialize repositories
	ownerRepo := repository.NewOwnerRepository(db)
	businessRepo := repository.NewBusinessRepository(db)
	planRepo := repository.NewPlanRepository(db)

	// Initialize services
	billingSvc := services.NewBillingService(businessRepo)
	catalogSvc := services.NewCatalogService(planRepo)
	provisioningSvc := services.NewProvisioningService(businessRepo, planRepo, billingSvc, proc, redisClient, nc)
	lifecycleSvc := services.NewLifecycleService(businessRepo, planRepo, proc, redisClient, nc, cfg.Billing.GraceDays)
	registrationSvc := services.NewRegistrationService(
		ownerRepo,
		businessRepo,
		planRepo,
		billingSvc,
		provisioningSvc,
		redisClient,
		nc,
		time.Duration(cfg.Billing.SessionTTLHours)*time.Hour,
	)

	// Seed the default plan catalog
	if err := catalogSvc.SeedDefaultPlans(context.Background()); err != nil {
		log.Printf("Warning: Failed to seed default plans: %v", err)
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient, nc)
	registrationHandler := handlers.NewRegistrationHandler(registrationSvc)
	businessHandler := handlers.NewBusinessHandler(businessRepo, billingSvc)
	planHandler := handlers.NewPlanHandler(catalogSvc)
	subscriptionHandler := handlers.NewSubscriptionHandler(provisioningSvc, lifecycleSvc)

	// Start the grace-window sweep
	bgRunner := background.NewRunner(lifecycleSvc, cfg.Billing)
	bgRunner.Start()

	// Setup router
	router := setupRouter(
		healthHandler,
		registrationHandler,
		businessHandler,
		planHandler,
		subscriptionHandler,
	)

	// Setup server
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting registration-service on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop background jobs first
	bgRunner.Stop()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close Redis connection
	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis connection: %v", err)
	}

	log.Println("Server exited")
}

func setupRouter(
	healthHandler *handlers.HealthHandler,
	registrationHandler *handlers.RegistrationHandler,
	businessHandler *handlers.BusinessHandler,
	planHandler *handlers.PlanHandler,
	subscriptionHandler *handlers.SubscriptionHandler,
) *gin.Engine {
	// Set Gin mode
	if getEnv("GIN_MODE", "debug") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{
		"http://localhost:3000", // Registration app (local)
		"http://localhost:4200", // Admin portal (local)
	}
	if extraOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); extraOrigins != "" {
		corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, splitAndTrim(extraOrigins)...)
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	corsConfig.AllowCredentials = true

	// Request logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Global middleware
	router.Use(cors.New(corsConfig))                  // CORS
	router.Use(gin.Recovery())                        // Panic recovery
	router.Use(middleware.RequestID())                // Correlation IDs
	router.Use(middleware.StructuredLogger(logger))   // Structured logging
	router.Use(middleware.Metrics())                  // Prometheus metrics

	// Metrics endpoint (Prometheus scraping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health endpoints
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Guided registration sessions
		sessions := v1.Group("/registration/sessions")
		{
			sessions.POST("", registrationHandler.StartSession)
			sessions.GET("/:sessionId", registrationHandler.GetSession)
			sessions.POST("/:sessionId/identity", registrationHandler.SubmitIdentity)
			sessions.POST("/:sessionId/business", registrationHandler.SubmitBusiness)
			sessions.POST("/:sessionId/plan", registrationHandler.SelectPlan)
			sessions.POST("/:sessionId/payment", registrationHandler.RequestPayment)
			sessions.POST("/:sessionId/payment/confirm", registrationHandler.ConfirmPayment)
			sessions.POST("/:sessionId/payment/cancel", registrationHandler.CancelPayment)
		}

		// Business accounts
		businesses := v1.Group("/businesses")
		{
			businesses.POST("", businessHandler.CreateBusiness)
			businesses.GET("", businessHandler.ListBusinesses)
			businesses.GET("/:id", businessHandler.GetBusiness)
			businesses.PUT("/:id", businessHandler.UpdateBusiness)
			businesses.PUT("/:id/billing-profile", businessHandler.UpdateBillingProfile)
		}

		// Plan catalog
		plans := v1.Group("/subscription-plans")
		{
			plans.GET("", planHandler.ListPlans)
			plans.GET("/:key", planHandler.GetPlan)
		}

		// Subscription provisioning and lifecycle
		subscriptions := v1.Group("/subscriptions")
		{
			subscriptions.POST("", subscriptionHandler.Subscribe)
			subscriptions.POST("/activate", subscriptionHandler.Activate)
			subscriptions.POST("/change-plan", subscriptionHandler.ChangePlan)
			subscriptions.POST("/change-plan/confirm", subscriptionHandler.ConfirmChangePlan)
			subscriptions.POST("/update-payment-method", subscriptionHandler.UpdatePaymentMethod)
			subscriptions.POST("/:businessId/pause", subscriptionHandler.Pause)
			subscriptions.POST("/:businessId/resume", subscriptionHandler.Resume)
			subscriptions.POST("/:businessId/cancel", subscriptionHandler.Cancel)
		}
	}

	return router
}

func autoMigrate(db *gorm.DB) error {
	log.Println("Starting database migration...")

	// Enable UUID extension in PostgreSQL
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		log.Printf("Warning: Failed to create uuid-ossp extension: %v", err)
	}

	modelsToMigrate := []interface{}{
		&models.Owner{},
		&models.Business{},
		&models.SubscriptionPlan{},
	}

	for _, model := range modelsToMigrate {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	log.Println("Database migration completed successfully")
	return nil
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Connected to database successfully")
	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
