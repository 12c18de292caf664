package handlers

import (
	"context"
	"net/http"
	"time"

	"restopos/internal/database"
	"restopos/internal/discovery"
	"restopos/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Health answers liveness checks and reports whether the database answers.
func (h *API) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := database.Ping(ctx, h.DB); err != nil {
		h.log.Warn("health check: database unreachable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "online", "database": "up"})
}

// SystemStatus feeds the setup screen: which box this is and what runs on it.
func (h *API) SystemStatus(c *gin.Context) {
	ok(c, http.StatusOK, "", gin.H{
		"device_id":   discovery.DeviceID(),
		"version":     h.Version,
		"environment": h.Environment,
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"assistant":   h.Agent != nil && h.Agent.Enabled(),
	})
}

// Realtime upgrades to the tenant's websocket feed.
func (h *API) Realtime(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	if err := h.Hub.Serve(c.Writer, c.Request, actor.TenantID, actor.UserID); err != nil {
		// The upgrader already wrote the HTTP error.
		h.log.Debug("websocket upgrade failed", "error", err)
	}
}
