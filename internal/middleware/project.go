package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/internal/services"
	"github.com/huangang/teamhub/pkg/response"
)

// ContextAccess holds the *services.AccessResult of the caller on the project
// named by the :id route parameter.
const ContextAccess = "project_access"

// ProjectPermission rejects the request unless the caller holds perm on the
// project in the :id route parameter.
func ProjectPermission(access *services.AccessService, perm models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			response.BadRequest(c, "invalid project id")
			c.Abort()
			return
		}

		res, err := access.Require(GetUserID(c), uint(projectID), perm)
		if err != nil {
			status := services.HTTPStatus(err)
			c.AbortWithStatusJSON(status, response.Response{
				Code:      status,
				Message:   err.Error(),
				Retryable: services.IsRetryable(err),
			})
			return
		}

		c.Set(ContextAccess, res)
		c.Next()
	}
}

// GetAccess returns the access result stored by ProjectPermission.
func GetAccess(c *gin.Context) *services.AccessResult {
	if v, exists := c.Get(ContextAccess); exists {
		return v.(*services.AccessResult)
	}
	return nil
}
