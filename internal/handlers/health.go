package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/services"
	"github.com/huangang/teamhub/pkg/response"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the service's subsystems.
type HealthHandler struct {
	db     *gorm.DB
	hub    *services.NotificationHub
	access *services.AccessService
}

func NewHealthHandler(db *gorm.DB, hub *services.NotificationHub, access *services.AccessService) *HealthHandler {
	return &HealthHandler{db: db, hub: hub, access: access}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if q := services.GetTaskQueue(); q != nil && q.IsAsync() {
		queueMode = "async (Redis)"
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "teamhub",
		"components": gin.H{
			"database":     dbStatus,
			"queue_mode":   queueMode,
			"sse_clients":  h.hub.ClientCount(),
			"access_cache": h.access.CacheStats(),
		},
	})
}

// CacheStats exposes access cache counters to administrators.
// GET /api/admin/cache/stats
func (h *HealthHandler) CacheStats(c *gin.Context) {
	response.Success(c, h.access.CacheStats())
}
