package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"elearn-portal/internal/config"
	"elearn-portal/internal/database"
	"elearn-portal/internal/events"
	"elearn-portal/internal/handlers"
	"elearn-portal/internal/middleware"
	"elearn-portal/internal/models"
	"elearn-portal/internal/pubsub"
	"elearn-portal/internal/services"
	"elearn-portal/internal/store"
	"elearn-portal/internal/ws"
	"elearn-portal/pkg/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := setupLogger(cfg)

	logger.WithFields(logrus.Fields{
		"env":  cfg.Env,
		"host": cfg.Host,
		"port": cfg.Port,
	}).Info("Starting e-learning portal backend")

	db, err := database.NewMongoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Error disconnecting from MongoDB")
		}
	}()

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.CreateIndexes(indexCtx); err != nil {
		logger.WithError(err).Warn("Failed to create some indexes")
	}
	cancelIndex()

	broker := setupBroker(cfg, logger)
	defer broker.Close()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, time.Duration(cfg.JWTExpiration)*time.Hour)

	notificationStore := store.NewMongoStore(db.Database.Collection("notifications"))
	userService := services.NewUserService(db.Database.Collection("users"))
	notificationService := services.NewNotificationService(notificationStore, broker, logger, cfg.PublishTimeout)

	bus := events.NewBus(logger)
	events.RegisterUserNotificationHook(bus, userService, notificationService, cfg.BackendURL, logger)

	registry := ws.NewRegistry(broker, logger)

	router := setupRouter(cfg, logger, jwtManager, registry, bus,
		userService, notificationService, notificationStore)

	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Server forced to shutdown")
	} else {
		logger.Info("Server gracefully stopped")
	}
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
	} else {
		gin.SetMode(gin.DebugMode)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func setupBroker(cfg *config.Config, logger *logrus.Logger) pubsub.Broker {
	if cfg.RedisEnabled {
		broker, err := pubsub.NewRedisBroker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		return broker
	}
	logger.Warn("Redis disabled, using in-process broker; cross-process delivery is unavailable")
	return pubsub.NewMemoryBroker(logger)
}

func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	jwtManager *auth.JWTManager,
	registry *ws.Registry,
	bus *events.Bus,
	userService *services.UserService,
	notificationService *services.NotificationService,
	notificationStore store.NotificationStore,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	authHandler := handlers.NewAuthHandler(userService, jwtManager, bus, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationStore, notificationService, logger)
	webSocketHandler := handlers.NewWebSocketHandler(jwtManager, registry, logger, ws.Options{
		PingInterval:      cfg.PingInterval,
		TimeoutMultiplier: cfg.PingTimeoutMultiplier,
	})

	router.GET("/ws", webSocketHandler.HandleWebSocket)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"stats": gin.H{
				"websocket_connections": registry.ConnectionsCount(),
				"connected_users":       registry.ActiveUsersCount(),
			},
		})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/register", authHandler.Register)
		v1.POST("/auth/login", authHandler.Login)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtManager))
		{
			protected.GET("/notifications", notificationHandler.GetNotifications)
			protected.GET("/notifications/unread-count", notificationHandler.GetUnreadCount)
			protected.POST("/notifications/:id/read", notificationHandler.MarkAsRead)
			protected.POST("/notifications/:id/unread", notificationHandler.MarkAsUnread)
			protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
			protected.DELETE("/notifications/:id", notificationHandler.DeleteNotification)
			protected.DELETE("/notifications", notificationHandler.DeleteAllNotifications)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager))
		admin.Use(middleware.RequireRole(models.RoleSuperAdmin))
		{
			admin.POST("/notifications/send", notificationHandler.SendNotification)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Endpoint not found",
			"path":  c.Request.URL.Path,
		})
	})

	return router
}
