package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/internal/services"
	"gorm.io/gorm"
)

var startTime = time.Now()

// MetricsHandler renders Prometheus text-format gauges.
type MetricsHandler struct {
	db     *gorm.DB
	hub    *services.NotificationHub
	access *services.AccessService
}

func NewMetricsHandler(db *gorm.DB, hub *services.NotificationHub, access *services.AccessService) *MetricsHandler {
	return &MetricsHandler{db: db, hub: hub, access: access}
}

// Metrics returns Prometheus-compatible text format metrics.
// GET /metrics
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "teamhub_uptime_seconds", "Time since server start in seconds", time.Since(startTime).Seconds())
	writeGauge(&b, "teamhub_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "teamhub_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))
	writeGauge(&b, "teamhub_gc_runs_total", "Total number of GC runs", float64(m.NumGC))

	if sqlDB, err := h.db.DB(); err == nil {
		stats := sqlDB.Stats()
		writeGauge(&b, "teamhub_db_open_connections", "Number of open DB connections", float64(stats.OpenConnections))
		writeGauge(&b, "teamhub_db_in_use_connections", "Number of in-use DB connections", float64(stats.InUse))
	}

	writeGauge(&b, "teamhub_sse_active_clients", "Number of active SSE connections", float64(h.hub.ClientCount()))

	queueAsync := 0.0
	if q := services.GetTaskQueue(); q != nil && q.IsAsync() {
		queueAsync = 1.0
	}
	writeGauge(&b, "teamhub_queue_async_enabled", "Whether async queue (Redis) is enabled (1=yes, 0=no)", queueAsync)

	cache := h.access.CacheStats()
	writeGauge(&b, "teamhub_access_cache_hits", "Access cache hits since start", float64(cache.Hits))
	writeGauge(&b, "teamhub_access_cache_misses", "Access cache misses since start", float64(cache.Misses))

	var pending, projects, users int64
	h.db.Model(&models.TeamInvitation{}).Where("status = ?", models.InvitationPending).Count(&pending)
	h.db.Model(&models.Project{}).Count(&projects)
	h.db.Model(&models.User{}).Where("is_active = ?", true).Count(&users)
	writeGauge(&b, "teamhub_invitations_pending", "Number of pending invitations", float64(pending))
	writeGauge(&b, "teamhub_projects_total", "Total number of projects", float64(projects))
	writeGauge(&b, "teamhub_users_active", "Number of active users", float64(users))

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
