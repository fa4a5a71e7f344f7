package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/services"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/huangang/teamhub/pkg/response"
)

// respondError writes a service error with the status its kind maps to.
// Transient failures are flagged retryable so clients can offer a retry.
func respondError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)

	message := err.Error()
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("request failed")
		if status == http.StatusInternalServerError {
			message = "internal server error"
		}
	}

	response.Error(c, &response.AppError{
		HTTPStatus: status,
		Code:       status,
		Message:    message,
		Retryable:  services.IsRetryable(err),
	})
}

// uintParam parses a numeric route parameter, answering 400 when it is not one.
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}
