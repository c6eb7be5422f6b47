package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos-service/config"
	"pos-service/internal/api"
	"pos-service/internal/auth"
	"pos-service/internal/broker"
	"pos-service/internal/redisclient"
	"pos-service/internal/service"
	"pos-service/internal/storage"
	"pos-service/internal/store"
	"pos-service/internal/util"
	"pos-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting POS service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("pos-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	images, err := storage.NewS3ImageStore(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to configure image storage", zap.Error(err))
	}
	if err := images.EnsureBucket(ctx); err != nil {
		logger.Warn("Image bucket is not available, uploads will fail", zap.Error(err))
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicOrder))

	eventPublisher := broker.NewEventPublisher(producer)
	feed := broker.NewOrderFeed()

	adminApp := auth.NewProvider(cfg.Auth.Admin, db, redisClient)
	tenantApp := auth.NewProvider(cfg.Auth.Tenant, db, redisClient)

	inventory := service.NewInventoryRegistry(db, db, feed, cfg.Business.StrictStockReservation)
	resolver := service.NewSessionResolver(adminApp, tenantApp, db, db, redisClient)
	loginService := service.NewLoginService(adminApp, tenantApp, db, db, redisClient, inventory,
		cfg.Auth.SessionTTL, cfg.Auth.ImpersonationTTL)
	tenantService := service.NewTenantService(db, db, tenantApp, images, loginService)
	adminService := service.NewAdminService(db, adminApp)
	catalogService := service.NewCatalogService(db, db, images, inventory)
	orderService := service.NewOrderService(db, redisClient, eventPublisher, cfg.Business.OrderIdempotencyTTL)
	reportService := service.NewReportService(db)

	if admin, err := adminService.Bootstrap(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Error("Failed to bootstrap superadmin", zap.Error(err))
	} else if admin != nil {
		logger.Info("Bootstrapped superadmin", zap.String("admin_id", admin.ID), zap.String("email", admin.Email))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	feedWorker := worker.NewOrderFeedWorker(orderConsumer, feed)
	go func() {
		if err := feedWorker.Start(workerCtx); err != nil {
			logger.Error("Order feed worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Dependencies{
		Resolver:  resolver,
		Login:     loginService,
		Tenants:   tenantService,
		Admins:    adminService,
		Catalog:   catalogService,
		Orders:    orderService,
		Reports:   reportService,
		Inventory: inventory,
		Cookies: api.CookieConfig{
			AdminPrefix: cfg.Auth.Admin.CookiePrefix,
			POSPrefix:   cfg.Auth.Tenant.CookiePrefix,
			Secure:      cfg.Auth.SecureCookies,
		},
		ReadyChecks: map[string]func(context.Context) error{
			"database": db.Ping,
			"redis":    redisClient.Ping,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := feedWorker.Stop(); err != nil {
		logger.Warn("Error stopping order feed worker", zap.Error(err))
	}
	inventory.Close()
	feed.Close()

	logger.Info("Server exited")
}
