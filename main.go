package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-svc/cache"
	"marketplace-svc/cart"
	"marketplace-svc/circuitbreaker"
	"marketplace-svc/config"
	"marketplace-svc/database"
	"marketplace-svc/database/memstore"
	"marketplace-svc/handlers"
	"marketplace-svc/jobs"
	"marketplace-svc/kafka"
	"marketplace-svc/middleware"
	"marketplace-svc/orders"
	"marketplace-svc/payment"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	// Initialize store
	var store database.Store
	var closeDB func() error
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		store = memstore.New()
	default:
		db, err := database.InitDB(cfg.Database, logger)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		closeDB = db.Close
		store = database.NewPostgresStore(db)
	}

	// Initialize Redis
	redisClient, err := cache.InitRedis(cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password}

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing("marketplace-svc", cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Initialize Kafka producer; order events are dropped while it is down
	var events orders.EventPublisher
	producer, err := kafka.InitProducer(cfg.KafkaBroker, logger)
	if err != nil {
		logger.Error("Failed to initialize Kafka producer, order events disabled", zap.Error(err))
	} else {
		events = kafka.NewOrderPublisher(producer, cfg.KafkaTopic, logger)
	}

	// Payment provider
	breaker := circuitbreaker.NewCircuitBreaker(5, 30*time.Second)
	stripeProvider := payment.NewStripeProvider(cfg.Stripe, breaker, logger)
	verifier := payment.NewWebhookVerifier(cfg.Stripe.WebhookSecret)

	// Services
	scheduler := jobs.NewScheduler(redisOpt, cfg.CartExpiry, cfg.CartExpiryMaxRetry, logger)
	cartService := cart.NewService(store, scheduler, stripeProvider, logger)
	orderService := orders.NewService(store, scheduler, stripeProvider, events, logger).
		WithEventLog(cache.NewWebhookEvents(redisClient))

	// Start cart expiry workers
	jobServer := jobs.NewServer(redisOpt, cfg.AsynqConcurrency, jobs.NewHandler(cartService, logger), logger)
	if err := jobServer.Start(); err != nil {
		logger.Fatal("Failed to start job server", zap.Error(err))
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware("marketplace-svc"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	webhookHandler := handlers.NewWebhookHandler(verifier, orderService, logger)
	router.POST("/webhook", webhookHandler.HandleStripe)

	api := router.Group("/api/v1", middleware.AuthMiddleware(cfg.JWTSecret))

	// Cart endpoints
	cartHandler := handlers.NewCartHandler(cartService, logger)
	api.GET("/cart", cartHandler.GetCart)
	api.POST("/cart", cartHandler.AddToCart)
	api.PUT("/cart", cartHandler.UpdateItemQuantity)
	api.DELETE("/cart/item", cartHandler.RemoveItem)
	api.DELETE("/cart", cartHandler.ClearCart)
	api.PUT("/cart/applycoupon", cartHandler.ApplyCoupon)

	// Order endpoints
	orderHandler := handlers.NewOrderHandler(orderService, logger)
	api.POST("/orders/createcashorder", orderHandler.CreateCashOrder)
	api.POST("/orders/checkoutsession", orderHandler.CreateCheckoutSession)
	api.GET("/orders", orderHandler.ListOrders)
	api.GET("/orders/:id", orderHandler.GetOrder)
	api.PUT("/orders/:id/status", middleware.AdminOnly(), orderHandler.UpdateOrderStatus)
	api.GET("/addresses", orderHandler.ListAddresses)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Marketplace service started", zap.String("port", cfg.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	jobServer.Shutdown()
	if err := scheduler.Close(); err != nil {
		logger.Error("Failed to close job scheduler", zap.Error(err))
	}
	closeProducer(producer, logger)
	if err := redisClient.Close(); err != nil {
		logger.Error("Failed to close Redis", zap.Error(err))
	}
	if closeDB != nil {
		if err := closeDB(); err != nil {
			logger.Error("Failed to close database", zap.Error(err))
		}
	}
	shutdownTracing()

	logger.Info("Server exited")
}

func closeProducer(producer sarama.SyncProducer, logger *zap.Logger) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.Error("Failed to close Kafka producer", zap.Error(err))
	}
}
