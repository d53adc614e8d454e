package handlers

import (
	"net/http"
	"time"

	"edu-notify/internal/middleware"
	"edu-notify/internal/models"
	"edu-notify/internal/services"
	"edu-notify/internal/store"
	"edu-notify/internal/websocket"
	"edu-notify/pkg/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Store          store.NotificationStore
	Broadcaster    *services.Broadcaster
	Registry       *websocket.Registry
	JWTManager     *auth.JWTManager
	SendLimiter    *middleware.RateLimiter // nil disables send rate limiting
	AllowedOrigins []string
	WSSendBuffer   int
	Version        string
	Log            logrus.FieldLogger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Log))

	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	notificationHandler := NewNotificationHandler(deps.Store, deps.Broadcaster, deps.Log)
	wsHandler := NewWebSocketHandler(deps.Registry, deps.JWTManager, deps.AllowedOrigins, deps.WSSendBuffer, deps.Log)
	healthHandler := NewHealthHandler(deps.Store, deps.Registry, deps.Broadcaster.Metrics(), deps.Version)

	// The live channel authenticates with ?token= before the upgrade.
	router.GET("/ws", wsHandler.HandleWebSocket)

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/live", healthHandler.Live)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/notifications/types", notificationHandler.GetNotificationTypes)

		protected := v1.Group("/notifications")
		protected.Use(middleware.AuthMiddleware(deps.JWTManager, deps.Log))
		{
			protected.GET("", notificationHandler.GetUserNotifications)
			protected.GET("/count", notificationHandler.GetUnreadCount)
			protected.PATCH("/read-all", notificationHandler.MarkAllAsRead)
			protected.PATCH("/:id/read", notificationHandler.MarkAsRead)
			protected.DELETE("/:id", notificationHandler.DeleteNotification)

			send := []gin.HandlerFunc{middleware.RequireRole(models.RoleAdmin)}
			if deps.SendLimiter != nil {
				send = append(send, deps.SendLimiter.RateLimit())
			}
			send = append(send, notificationHandler.SendNotification)
			protected.POST("/send", send...)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Endpoint not found",
			"path":  c.Request.URL.Path,
		})
	})

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":  "Method not allowed",
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
	})

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders: []string{"Content-Length", middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
