package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tesseract-Nexus/go-shared/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"tenancy-service/internal/background"
	"tenancy-service/internal/config"
	"tenancy-service/internal/handlers"
	"tenancy-service/internal/logging"
	tenancyMetrics "tenancy-service/internal/metrics"
	"tenancy-service/internal/middleware"
	"tenancy-service/internal/models"
	natsClient "tenancy-service/internal/nats"
	"tenancy-service/internal/redis"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/services"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.New()
	log := logging.New(cfg.App.LogLevel)
	logger := log.WithField("service", "tenancy-service")
	handlers.SetLogger(logger)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	logger.Info("Connected to database successfully")

	if err := autoMigrate(db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	// Redis is optional: without it host lookups go straight to the database
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to Redis, host cache disabled")
		redisClient = nil
	} else {
		logger.Info("Connected to Redis successfully")
	}

	var nc *natsClient.Client
	if cfg.NATS.Enabled {
		nc, err = natsClient.NewClient(natsClient.Config{URL: cfg.NATS.URL}, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to NATS, event publishing disabled")
			nc = nil
		}
	}

	metricsCollector := metrics.New(metrics.Config{
		ServiceName: "tenancy-service",
		Namespace:   "projectmeats",
		Subsystem:   "tenancy",
	})
	tenancyStats := tenancyMetrics.NewTenancyMetrics(prometheus.DefaultRegisterer)

	tenantRepo := repository.NewTenantRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	supplierRepo := repository.NewSupplierRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	purchaseOrderRepo := repository.NewPurchaseOrderRepository(db)

	resolver := services.NewTenantResolver(tenantRepo, membershipRepo, cfg.Tenancy, logger)
	resolver.SetMetrics(tenancyStats)

	tenantSvc := services.NewTenantService(tenantRepo, membershipRepo, activityRepo, cfg.Tenancy, logger)
	tenantSvc.SetMetrics(tenancyStats)

	invitationTTL := time.Duration(cfg.Tenancy.InvitationExpiryHours) * time.Hour
	membershipSvc := services.NewMembershipService(membershipRepo, tenantRepo, activityRepo, invitationTTL, logger)

	if redisClient != nil {
		resolver.SetHostCache(redisClient)
		tenantSvc.SetHostCache(redisClient)
	}
	if nc != nil {
		tenantSvc.SetEventPublisher(nc)
		membershipSvc.SetEventPublisher(nc)
	}

	assigner := services.NewTenantAssigner(membershipRepo, tenancyStats, logger)
	supplierSvc := services.NewSupplierService(supplierRepo, assigner, activityRepo, logger)
	customerSvc := services.NewCustomerService(customerRepo, assigner, activityRepo, logger)
	purchaseOrderSvc := services.NewPurchaseOrderService(purchaseOrderRepo, supplierRepo, assigner, activityRepo, logger)

	bgRunner := background.NewRunner(tenantSvc, time.Duration(cfg.Tenancy.TrialSweepIntervalMinutes)*time.Minute, logger)
	bgRunner.SetInvitationPurger(membershipSvc)
	bgRunner.Start()

	var redisPinger handlers.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	var natsChecker handlers.ConnectionChecker
	if nc != nil {
		natsChecker = nc
	}
	healthHandler := handlers.NewHealthHandler(db, redisPinger, natsChecker)
	healthHandler.SetTenantCounter(tenantRepo)

	routes := &handlers.Routes{
		Tenants:        handlers.NewTenantHandler(tenantSvc),
		Memberships:    handlers.NewMembershipHandler(membershipSvc),
		Suppliers:      handlers.NewSupplierHandler(supplierSvc),
		Customers:      handlers.NewCustomerHandler(customerSvc),
		PurchaseOrders: handlers.NewPurchaseOrderHandler(purchaseOrderSvc),
	}

	router := setupRouter(cfg, logger, healthHandler, routes, resolver, metricsCollector)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting tenancy-service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	bgRunner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	if nc != nil {
		nc.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Error("Error closing Redis connection")
		}
	}

	logger.Info("Server exited")
}

func setupRouter(
	cfg *config.Config,
	logger *logrus.Entry,
	healthHandler *handlers.HealthHandler,
	routes *handlers.Routes,
	resolver middleware.TenantResolver,
	metricsCollector *metrics.Metrics,
) *gin.Engine {
	if cfg.App.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", cfg.Tenancy.HeaderName, "X-User-ID"}
	corsConfig.AllowCredentials = true

	router.Use(cors.New(corsConfig))                // CORS
	router.Use(gin.Recovery())                      // Panic recovery
	router.Use(middleware.RequestID())              // Correlation IDs
	router.Use(middleware.StructuredLogger(logger)) // Structured logging
	router.Use(metricsCollector.Middleware())       // Prometheus metrics

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	v1.Use(
		middleware.Authentication(logger),
		middleware.UserIdentity(),
		middleware.TenantResolution(resolver, cfg.Tenancy.HeaderName),
	)
	routes.Register(v1)

	return router
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func autoMigrate(db *gorm.DB, logger *logrus.Entry) error {
	logger.Info("Starting database migration...")

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		logger.WithError(err).Warn("Failed to create uuid-ossp extension")
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	// Only one primary domain per tenant
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_tenant_domains_primary
		ON tenant_domains (tenant_id) WHERE is_primary`).Error; err != nil {
		logger.WithError(err).Warn("Failed to create primary domain index")
	}

	logger.Info("Database migration completed")
	return nil
}
