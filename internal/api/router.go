package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/api/handlers"
	"github.com/gmarko-dV/Integrador/internal/api/middleware"
	"github.com/gmarko-dV/Integrador/internal/config"
	"github.com/gmarko-dV/Integrador/internal/db"
	"github.com/gmarko-dV/Integrador/internal/logger"
	"github.com/gmarko-dV/Integrador/internal/metrics"
	"github.com/gmarko-dV/Integrador/internal/services"
)

// Services are the domain services behind the public API.
type Services struct {
	Anuncios       services.IAnuncioService
	Conversaciones services.IConversacionService
	Notificaciones services.INotificacionService
	Plates         services.IPlateSearchService
	Chat           services.IChatService
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svc Services, verifier middleware.TokenVerifier, rateLimiter *middleware.RateLimiterMiddleware, m *metrics.Metrics, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)

	r := gin.New()
	r.MaxMultipartMemory = cfg.ImageMaxSizeBytes() * 2

	// Apply global middleware first (order matters)
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log.Named("http")))
	if m != nil {
		r.Use(middleware.MetricsMiddleware(m))
	}
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigins))
	if rateLimiter != nil {
		r.Use(rateLimiter.Limit())
	}

	if cfg.StorageBackend != "s3" {
		r.Static("/uploads", cfg.UploadDir)
	}

	publicHandler := handlers.NewPublicHandler(cfg.SupabaseURL + "/auth/v1/authorize")
	anuncioHandler := handlers.NewAnuncioHandler(svc.Anuncios, cfg.AllowedEmailDomain)
	conversacionHandler := handlers.NewConversacionHandler(svc.Conversaciones, svc.Notificaciones, log.Named("conversaciones"))
	notificacionHandler := handlers.NewNotificacionHandler(svc.Notificaciones)
	plateHandler := handlers.NewPlateSearchHandler(svc.Plates)
	chatHandler := handlers.NewChatHandler(svc.Chat)

	requireAuth := middleware.RequireAuth(verifier)
	optionalAuth := middleware.OptionalAuth(verifier)

	apiGroup := r.Group("/api")
	{
		public := apiGroup.Group("/public")
		public.GET("/health", publicHandler.Health)
		public.GET("/info", publicHandler.Info)

		authGroup := apiGroup.Group("/auth")
		authGroup.GET("/user", requireAuth, publicHandler.User)
		authGroup.GET("/check", optionalAuth, publicHandler.Check)

		anuncios := apiGroup.Group("/anuncios")
		anuncios.GET("", anuncioHandler.ListActive)
		anuncios.GET("/mis-anuncios", requireAuth, anuncioHandler.ListMine)
		anuncios.GET("/:id", anuncioHandler.GetByID)
		anuncios.POST("", requireAuth, anuncioHandler.Create)
		anuncios.PUT("/:id", requireAuth, anuncioHandler.Update)
		anuncios.DELETE("/:id", requireAuth, anuncioHandler.Delete)

		conversaciones := apiGroup.Group("/conversaciones", requireAuth)
		conversaciones.POST("", conversacionHandler.CreateOrGet)
		conversaciones.GET("", conversacionHandler.List)
		conversaciones.GET("/mensajes/no-leidos", conversacionHandler.UnreadCount)
		conversaciones.GET("/:id", conversacionHandler.Get)
		conversaciones.GET("/:id/mensajes", conversacionHandler.Messages)
		conversaciones.POST("/:id/mensajes", conversacionHandler.SendMessage)
		conversaciones.PUT("/:id/mensajes/leer", conversacionHandler.MarkRead)
		conversaciones.PUT("/:id/archivar", conversacionHandler.Archive)

		notificaciones := apiGroup.Group("/notificaciones", requireAuth)
		notificaciones.POST("/contactar", notificacionHandler.Contactar)
		notificaciones.GET("", notificacionHandler.List)
		notificaciones.GET("/no-leidas", notificacionHandler.Unread)
		notificaciones.PUT("/marcar-todas-leidas", notificacionHandler.MarkAllRead)
		notificaciones.PUT("/:id/marcar-leida", notificacionHandler.MarkRead)

		plates := apiGroup.Group("/plate-search")
		plates.POST("", optionalAuth, plateHandler.Search)
		plates.GET("/history", requireAuth, plateHandler.History)
		plates.GET("/recent", plateHandler.Recent)
		plates.GET("/validate/:plate", plateHandler.Validate)
		plates.GET("/test", plateHandler.Test)
		plates.GET("/raw/:placa", plateHandler.Raw)

		apiGroup.POST("/chat", chatHandler.Chat)
	}

	return r
}

// SetupServiceRouter configures the internal service engine: metrics,
// health and shutdown. database and rdb may be nil in worker-less setups.
func SetupServiceRouter(database *mongo.Database, rdb *redis.Client, m *metrics.Metrics, shutdownChan chan<- struct{}, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)

	r := gin.New()
	r.Use(gin.Recovery())

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true
		if database != nil {
			if err := db.Ping(ctx, database); err != nil {
				log.Warn("Health check: MongoDB ping failed", zap.Error(err))
				checks["mongo"] = err.Error()
				healthy = false
			} else {
				checks["mongo"] = "ok"
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Warn("Health check: Redis ping failed", zap.Error(err))
				checks["redis"] = err.Error()
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
	})

	r.POST("/shutdown", func(c *gin.Context) {
		log.Info("Received shutdown command via Service API")
		c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
		select {
		case shutdownChan <- struct{}{}:
		default:
			log.Info("Shutdown channel already signaled")
		}
	})

	return r
}
