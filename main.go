package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/api"
	"github.com/gmarko-dV/Integrador/internal/api/middleware"
	"github.com/gmarko-dV/Integrador/internal/auth"
	"github.com/gmarko-dV/Integrador/internal/cache"
	"github.com/gmarko-dV/Integrador/internal/config"
	"github.com/gmarko-dV/Integrador/internal/db"
	"github.com/gmarko-dV/Integrador/internal/email"
	"github.com/gmarko-dV/Integrador/internal/events"
	"github.com/gmarko-dV/Integrador/internal/logger"
	"github.com/gmarko-dV/Integrador/internal/metrics"
	"github.com/gmarko-dV/Integrador/internal/services"
	"github.com/gmarko-dV/Integrador/internal/storage"
	"github.com/gmarko-dV/Integrador/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func newImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	if cfg.StorageBackend == "s3" {
		client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(client, cfg.AwsS3Bucket, cfg.ImageBaseS3URL), nil
	}
	return storage.NewLocalStore(cfg.UploadDir)
}

func newPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	if cfg.NatsURL == "" {
		logger.Info("NATS_URL not set, domain events disabled")
		return events.NopPublisher{}
	}
	publisher, err := events.NewNATSPublisher(cfg.NatsURL, logger)
	if err != nil {
		logger.Warn("NATS unavailable, domain events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	return publisher
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialise logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Initialize Database
	connectCtx, cancelConnect := context.WithTimeout(rootCtx, 20*time.Second)
	mongoClient, mongoDb, err := db.ConnectDB(connectCtx, cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			appLogger.Warn("Error disconnecting from MongoDB", zap.Error(err))
		}
	}()
	if err := db.EnsureIndexes(connectCtx, mongoDb); err != nil {
		appLogger.Fatal("Failed to create indexes", zap.Error(err))
	}

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(connectCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			appLogger.Warn("Error disconnecting from Redis", zap.Error(err))
		}
	}()

	imageStore, err := newImageStore(connectCtx, cfg)
	cancelConnect()
	if err != nil {
		appLogger.Fatal("Failed to initialize image storage", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}

	appMetrics := metrics.New()
	publisher := newPublisher(cfg, appLogger.Named("events"))
	defer publisher.Close()

	// Initialize Task Client
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	distributor := tasks.NewDistributor(taskClient, appLogger.Named("tasks"))

	deps := func(name string) services.Deps {
		return services.Deps{
			Logger:  appLogger.Named(name),
			Events:  publisher,
			Jobs:    distributor,
			Metrics: appMetrics,
		}
	}

	anuncioService := services.NewAnuncioService(mongoDb, imageStore,
		cache.NewAnuncioCache(redisClient, cfg.CacheTTL), cfg.ImageMaxSizeBytes(), deps("anuncios"))
	svc := api.Services{
		Anuncios:       anuncioService,
		Conversaciones: services.NewConversacionService(mongoDb, anuncioService, deps("conversaciones")),
		Notificaciones: services.NewNotificacionService(mongoDb, anuncioService, deps("notificaciones")),
		Plates: services.NewPlateSearchService(mongoDb, services.NewPlacaAPIService(services.PlacaAPIConfig{
			URL:      cfg.PlacaApiURL,
			Username: cfg.PlacaApiUsername,
			Timeout:  cfg.PlacaApiTimeout,
		}, appLogger.Named("placa-api")), deps("plates")),
		Chat: services.NewChatService(services.ChatConfig{
			APIKey:  cfg.DeepSeekApiKey,
			URL:     cfg.DeepSeekApiURL,
			Model:   cfg.DeepSeekModel,
			Timeout: cfg.DeepSeekTimeout,
		}, anuncioService, deps("chat")),
	}

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(mongoDb, redisClient, appMetrics, shutdownChan, appLogger.Named("service-api")),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		appLogger.Info("Service API listening", zap.String("port", cfg.ServiceApiPort))
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Service API ListenAndServe error", zap.Error(err))
		}
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var verifier *auth.Verifier
	var taskSrv *asynq.Server

	appLogger.Info("Starting application", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		verifier = auth.NewVerifier(auth.VerifierConfig{
			SupabaseURL: cfg.SupabaseURL,
			JwtSecret:   cfg.SupabaseJwtSecret,
			AnonKey:     cfg.SupabaseAnonKey,
			HTTPTimeout: 10 * time.Second,
		}, appLogger.Named("auth"))
		rateLimiter := middleware.NewRateLimiterMiddleware(rootCtx, cfg.RateLimitRefillRate, cfg.RateLimitBucketSize, appLogger.Named("ratelimit"))

		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: api.SetupRouter(cfg, svc, verifier, rateLimiter, appMetrics, appLogger),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			appLogger.Info("Main API listening", zap.String("port", cfg.ApiPort))
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLogger.Fatal("Main API ListenAndServe error", zap.Error(err))
			}
		}()
	}

	bgMode := func() {
		processor := tasks.NewTaskProcessor(
			email.NewFromConfig(cfg, redisClient, appLogger.Named("email")),
			imageStore,
			cfg.ImageMaxDimension,
			cfg.ImageMaxSizeBytes(),
			appLogger.Named("worker"),
		)
		var mux *asynq.ServeMux
		taskSrv, mux = tasks.SetupServer(tasks.RedisOpt(redisClient), processor, appLogger.Named("worker"))
		if err := taskSrv.Start(mux); err != nil {
			appLogger.Fatal("Background task server error", zap.Error(err))
		}
		appLogger.Info("Background task server started")
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		appLogger.Fatal(fmt.Sprintf("Invalid run mode specified: %s", cfg.RunMode))
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case <-shutdownChan:
		appLogger.Info("Shutdown requested via Service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		appLogger.Warn("Service API server shutdown error", zap.Error(err))
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			appLogger.Warn("Main API server shutdown error", zap.Error(err))
		}
	}
	if verifier != nil {
		verifier.Close()
	}
	if taskSrv != nil {
		taskSrv.Shutdown()
	}
	cancelRoot()

	wg.Wait()
	appLogger.Info("Server gracefully stopped")
}
