package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/services"
	"github.com/huangang/teamhub/pkg/response"
)

type SystemLogHandler struct {
	systemLogService *services.SystemLogService
	retention        *services.RetentionService
}

func NewSystemLogHandler(systemLogService *services.SystemLogService, retention *services.RetentionService) *SystemLogHandler {
	return &SystemLogHandler{
		systemLogService: systemLogService,
		retention:        retention,
	}
}

// List returns audit log entries
// GET /api/admin/system-logs
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.systemLogService.List(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// GET /api/admin/system-logs/modules
func (h *SystemLogHandler) GetModules(c *gin.Context) {
	modules, err := h.systemLogService.GetModules()
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"modules": modules})
}

// Cleanup runs the retention job immediately
// POST /api/admin/system-logs/cleanup
func (h *SystemLogHandler) Cleanup(c *gin.Context) {
	result, err := h.retention.RunCleanup()
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}
