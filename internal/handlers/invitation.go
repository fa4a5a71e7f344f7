package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/middleware"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/internal/services"
	"github.com/huangang/teamhub/pkg/response"
)

type InvitationHandler struct {
	invitationService *services.InvitationService
}

func NewInvitationHandler(invitationService *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService}
}

// Create issues an invitation to join the project
// POST /api/projects/:id/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.invitationService.Create(projectID, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, result)
}

// ListForProject lists a project's invitations, optionally filtered by status
// GET /api/projects/:id/invitations?status=pending
func (h *InvitationHandler) ListForProject(c *gin.Context) {
	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	status := models.InvitationStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		response.BadRequest(c, "invalid status")
		return
	}

	invitations, err := h.invitationService.ListForProject(middleware.GetUserID(c), projectID, status)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, invitations)
}

// Revoke withdraws a pending invitation
// DELETE /api/projects/:id/invitations/:invitationID
func (h *InvitationHandler) Revoke(c *gin.Context) {
	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	invitationID, ok := uintParam(c, "invitationID")
	if !ok {
		return
	}

	if err := h.invitationService.Revoke(middleware.GetUserID(c), projectID, invitationID); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, nil)
}

// ListMine returns the pending invitations addressed to the caller
// GET /api/invitations
func (h *InvitationHandler) ListMine(c *gin.Context) {
	invitations, err := h.invitationService.ListPendingForUser(middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, invitations)
}

// Preview describes an invitation without changing it
// GET /api/invitations/:code
func (h *InvitationHandler) Preview(c *gin.Context) {
	preview, err := h.invitationService.Preview(c.Param("code"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, preview)
}

// Accept joins the project named by the invitation
// POST /api/invitations/:code/accept
func (h *InvitationHandler) Accept(c *gin.Context) {
	result, err := h.invitationService.Accept(c.Param("code"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}

// Decline refuses the invitation
// POST /api/invitations/:code/decline
func (h *InvitationHandler) Decline(c *gin.Context) {
	if err := h.invitationService.Decline(c.Param("code"), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"status": models.InvitationDeclined})
}
