package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/middleware"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine. It returns
// the rate limiters so their cleanup goroutines can be stopped on shutdown.
func registerRoutes(r *gin.Engine, svc *appServices) []*middleware.RateLimiter {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())
	r.Use(middleware.AuditLog())

	// Login and code redemption are the endpoints worth brute-forcing.
	authLimiter := middleware.NewRateLimiter(1, 5)
	codeLimiter := middleware.NewRateLimiter(2, 10)

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", svc.metricsHandler.Metrics)

	// Project-scoped routes are gated here on the permission the operation
	// needs. Services check again since they are also reached without HTTP.
	perm := func(p models.Permission) gin.HandlerFunc {
		return middleware.ProjectPermission(svc.access, p)
	}

	api := r.Group("/api")
	{
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/verify-email/confirm", svc.authHandler.ConfirmEmail)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.PUT("/auth/password", svc.authHandler.ChangePassword)
			protected.POST("/auth/verify-email", authLimiter.Middleware(), svc.authHandler.RequestEmailVerification)

			// SSE, the token may come from ?token= since EventSource sends no headers
			protected.GET("/events/notifications", svc.sseHandler.StreamNotifications)

			// Projects
			protected.GET("/projects", svc.projectHandler.List)
			protected.POST("/projects", svc.projectHandler.Create)
			protected.GET("/projects/:id", perm(models.PermRead), svc.projectHandler.GetByID)
			protected.PUT("/projects/:id", perm(models.PermWrite), svc.projectHandler.Update)
			protected.DELETE("/projects/:id", perm(models.PermDelete), svc.projectHandler.Delete)
			// non-members get has_access=false rather than 403
			protected.GET("/projects/:id/access", svc.memberHandler.Access)

			// Members
			protected.GET("/projects/:id/members", perm(models.PermRead), svc.memberHandler.List)
			protected.PUT("/projects/:id/members/:userID", perm(models.PermManageMembers), svc.memberHandler.UpdateRole)
			protected.DELETE("/projects/:id/members/:userID", perm(models.PermManageMembers), svc.memberHandler.Remove)
			protected.POST("/projects/:id/leave", svc.memberHandler.Leave) // 404 for non-members

			// Invitations issued by a project
			protected.POST("/projects/:id/invitations", codeLimiter.Middleware(), perm(models.PermInvite), svc.invitationHandler.Create)
			protected.GET("/projects/:id/invitations", perm(models.PermInvite), svc.invitationHandler.ListForProject)
			protected.DELETE("/projects/:id/invitations/:invitationID", perm(models.PermInvite), svc.invitationHandler.Revoke)

			// Invitations addressed to the caller
			invitations := protected.Group("/invitations")
			{
				invitations.GET("", svc.invitationHandler.ListMine)
				invitations.GET("/:code", codeLimiter.Middleware(), svc.invitationHandler.Preview)
				invitations.POST("/:code/accept", codeLimiter.Middleware(), svc.invitationHandler.Accept)
				invitations.POST("/:code/decline", codeLimiter.Middleware(), svc.invitationHandler.Decline)
			}

			// Notifications
			protected.GET("/notifications", svc.notificationHandler.List)
			protected.GET("/notifications/unread-count", svc.notificationHandler.UnreadCount)
			protected.POST("/notifications/read-all", svc.notificationHandler.MarkAllRead)
			protected.POST("/notifications/:id/read", svc.notificationHandler.MarkRead)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/system-logs", svc.systemLogHandler.List)
			admin.GET("/system-logs/modules", svc.systemLogHandler.GetModules)
			admin.POST("/system-logs/cleanup", svc.systemLogHandler.Cleanup)
			admin.GET("/cache/stats", svc.healthHandler.CacheStats)
			admin.POST("/users/:id/verify", svc.authHandler.VerifyUser)
		}
	}

	return []*middleware.RateLimiter{authLimiter, codeLimiter}
}
