package handlers

import (
	"context"
	"net/http"
	"time"

	"edu-notify/internal/services"
	"edu-notify/internal/store"
	"edu-notify/internal/websocket"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	store    store.NotificationStore
	registry *websocket.Registry
	metrics  *services.Metrics
	version  string
}

func NewHealthHandler(st store.NotificationStore, registry *websocket.Registry, metrics *services.Metrics, version string) *HealthHandler {
	return &HealthHandler{store: st, registry: registry, metrics: metrics, version: version}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"version":     h.version,
		"time":        time.Now().UTC(),
		"connections": h.registry.ConnectionsCount(),
		"activeUsers": h.registry.ActiveUsersCount(),
		"metrics":     h.metrics.Snapshot(),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}
