package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/middleware"
	"github.com/huangang/teamhub/internal/services"
	"github.com/huangang/teamhub/pkg/response"
)

type MemberHandler struct {
	memberService *services.MemberService
	access        *services.AccessService
}

func NewMemberHandler(memberService *services.MemberService, access *services.AccessService) *MemberHandler {
	return &MemberHandler{memberService: memberService, access: access}
}

// List returns the active members of a project
// GET /api/projects/:id/members
func (h *MemberHandler) List(c *gin.Context) {
	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	members, err := h.memberService.List(middleware.GetUserID(c), projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, members)
}

// UpdateRole changes a member's role
// PUT /api/projects/:id/members/:userID
func (h *MemberHandler) UpdateRole(c *gin.Context) {
	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	userID, ok := uintParam(c, "userID")
	if !ok {
		return
	}

	var req services.UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := h.memberService.UpdateRole(middleware.GetUserID(c), projectID, userID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, member)
}

// Remove ends a member's membership
// DELETE /api/projects/:id/members/:userID
func (h *MemberHandler) Remove(c *gin.Context) {
	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	userID, ok := uintParam(c, "userID")
	if !ok {
		return
	}

	if err := h.memberService.Remove(middleware.GetUserID(c), projectID, userID); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, nil)
}

// Leave ends the caller's own membership
// POST /api/projects/:id/leave
func (h *MemberHandler) Leave(c *gin.Context) {
	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	if err := h.memberService.Leave(middleware.GetUserID(c), projectID); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, nil)
}

// Access reports the caller's role and permissions on a project. A caller
// without access gets has_access=false rather than an error.
// GET /api/projects/:id/access
func (h *MemberHandler) Access(c *gin.Context) {
	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	result, err := h.access.CheckAccess(middleware.GetUserID(c), projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}
