package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/middleware"
	"github.com/huangang/teamhub/internal/services"
	"github.com/huangang/teamhub/internal/utils"
	"github.com/huangang/teamhub/pkg/response"
)

type AuthHandler struct {
	authService  *services.AuthService
	emailService *services.EmailService
}

func NewAuthHandler(authService *services.AuthService, emailService *services.EmailService) *AuthHandler {
	return &AuthHandler{authService: authService, emailService: emailService}
}

// Register creates an account
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.authService.Register(&req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailTaken), errors.Is(err, services.ErrPhoneTaken):
			response.Error(c, response.NewConflict(err.Error()))
		case errors.Is(err, services.ErrInvalidContact),
			errors.Is(err, utils.ErrPasswordTooShort), errors.Is(err, utils.ErrPasswordTooLong):
			response.BadRequest(c, err.Error())
		default:
			respondError(c, err)
		}
		return
	}

	response.Created(c, user)
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrUserDisabled) {
			response.Unauthorized(c, err.Error())
			return
		}
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// GetCurrentUser returns the current logged-in user
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.authService.GetUserByID(middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, user)
}

// ChangePassword updates the caller's password
// PUT /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.authService.ChangePassword(middleware.GetUserID(c), &req); err != nil {
		if services.KindOf(err) == "" {
			response.BadRequest(c, err.Error())
			return
		}
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "password updated"})
}

// RequestEmailVerification mails a confirmation link to the caller's address
// POST /api/auth/verify-email
func (h *AuthHandler) RequestEmailVerification(c *gin.Context) {
	token, user, err := h.authService.IssueEmailVerification(middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if token == "" {
		response.Success(c, gin.H{"message": "email already verified"})
		return
	}
	if !h.emailService.Enabled() {
		response.Error(c, response.NewUnavailable("email delivery is not configured, ask an administrator to verify the address"))
		return
	}

	subject, body, err := h.emailService.RenderVerification(user, token)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.emailService.Send(user.Email, subject, body); err != nil {
		response.Error(c, response.NewUnavailable("failed to send verification email"))
		return
	}
	response.Success(c, gin.H{"message": "verification email sent"})
}

type confirmEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// ConfirmEmail redeems a confirmation link
// POST /api/auth/verify-email/confirm
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	var req confirmEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.authService.ConfirmEmail(req.Token)
	if err != nil {
		if errors.Is(err, services.ErrInvalidVerification) {
			response.BadRequest(c, err.Error())
			return
		}
		respondError(c, err)
		return
	}
	response.Success(c, user)
}

type verifyUserRequest struct {
	Email bool `json:"email"`
	Phone bool `json:"phone"`
}

// VerifyUser marks a user's contacts as confirmed on an operator's word
// POST /api/admin/users/:id/verify
func (h *AuthHandler) VerifyUser(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req verifyUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !req.Email && !req.Phone {
		response.BadRequest(c, "nothing to verify")
		return
	}

	user, err := h.authService.VerifyContacts(id, req.Email, req.Phone)
	if err != nil {
		if errors.Is(err, services.ErrInvalidContact) {
			response.BadRequest(c, "user has no phone number on file")
			return
		}
		respondError(c, err)
		return
	}
	response.Success(c, user)
}

// Logout handles user logout (client-side token removal)
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	response.Success(c, gin.H{"message": "logged out successfully"})
}
