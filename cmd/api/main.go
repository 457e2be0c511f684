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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/wallau/shop-api/internal/aiclient"
	"github.com/wallau/shop-api/internal/config"
	"github.com/wallau/shop-api/internal/events"
	"github.com/wallau/shop-api/internal/handler"
	"github.com/wallau/shop-api/internal/middleware"
	"github.com/wallau/shop-api/internal/repository"
	"github.com/wallau/shop-api/internal/service"
	"github.com/wallau/shop-api/internal/worker"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		log.Error("create upload dir", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	stockRepo := repository.NewStockRepository(dbPool)
	aiJobRepo := repository.NewAiJobRepository(dbPool)

	// AI service client and realtime emitter
	aiClient := aiclient.New(cfg.AI.BaseURL, cfg.AI.Timeout, cfg.AI.UseRealService)
	emitter := events.NewRedisEmitter(redisClient, log)

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(productRepo, redisClient, cfg.Upload.Dir, cfg.Server.PublicBaseURL)
	cartSvc := service.NewCartService(cartRepo, productRepo)
	orderSvc := service.NewOrderService(orderRepo, stockRepo, productRepo, amqpCh, log)
	aiJobSvc := service.NewAiJobService(
		aiJobRepo, aiClient, emitter, log,
		cfg.AI.UseRealService, cfg.Upload.Dir, cfg.Server.PublicBaseURL,
	)

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	productH := handler.NewProductHandler(productSvc, cfg.Upload.Dir)
	cartH := handler.NewCartHandler(cartSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	aiJobH := handler.NewAiJobHandler(aiJobSvc, cfg.Upload.Dir)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn, cfg.Upload.Dir, cfg.AI.UseRealService)

	// Worker
	mailWorker := worker.NewMailWorker(amqpCh, orderRepo, userRepo, &worker.LogMailer{Log: log}, redisClient, log)

	// Router
	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)
	router.Static("/uploads", cfg.Upload.Dir)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)

		users := v1.Group("/users", middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminOnly())
		users.GET("", authH.ListUsers)

		products := v1.Group("/products")
		products.GET("", productH.List)
		products.GET("/:id", productH.GetByID)

		adminProducts := products.Group("", middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminOnly())
		adminProducts.POST("", productH.Create)
		adminProducts.PUT("/:id", productH.Update)
		adminProducts.DELETE("/:id", productH.Delete)
		adminProducts.POST("/:id/sizes", productH.AddSize)
		adminProducts.PUT("/:id/sizes/:sizeId/stock", productH.SetStock)
		adminProducts.POST("/:id/images", productH.UploadImage)
		adminProducts.DELETE("/:id/images/:imageId", productH.DeleteImage)

		cart := v1.Group("/cart", middleware.AuthMiddleware(cfg.JWT.Secret))
		cart.GET("", cartH.GetCart)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.DeleteItem)
		cart.DELETE("", cartH.ClearCart)

		orders := v1.Group("/orders", middleware.AuthMiddleware(cfg.JWT.Secret))
		orders.POST("", orderH.CreateOrder)
		orders.GET("", orderH.ListOrders) // role-scoped: customers see their own
		orders.GET("/:id", orderH.GetOrder)
		orders.POST("/:id/cancel", orderH.CancelMyOrder)

		adminOrders := orders.Group("", middleware.AdminOnly())
		adminOrders.PUT("/:id/status", orderH.UpdateStatus)
		adminOrders.DELETE("/:id", orderH.DeleteOrder)

		aiJobs := v1.Group("/ai/product-jobs", middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminOnly())
		aiJobs.POST("", aiJobH.CreateJob)
		aiJobs.GET("", aiJobH.ListOpenJobs) // open jobs: not yet turned into a product
		aiJobs.POST("/:id/retry", aiJobH.RetryJob)
		aiJobs.DELETE("/:id", aiJobH.DeleteJob)
	}

	if err := mailWorker.Start(ctx); err != nil {
		log.Error("start mail worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	mailWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
