package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/internal/middleware"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/internal/services"
	"github.com/huangang/teamhub/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	auth     *services.AuthService
	projects *services.ProjectService
	mailer   *capturingMailer
}

type capturingMailer struct {
	sent []*gomail.Message
}

func (m *capturingMailer) DialAndSend(msgs ...*gomail.Message) error {
	m.sent = append(m.sent, msgs...)
	return nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())
	utils.SetJWTSecret("handler-test-secret")

	dsn := fmt.Sprintf("file:handlers_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	hub := services.NewNotificationHub()
	store := services.NewInvitationStore(db)
	access := services.NewAccessService(db, services.NewMemoryAccessCache(64, time.Minute))
	auth := services.NewAuthService(db, &config.JWTConfig{Secret: "handler-test-secret", ExpireHour: 1})
	projects := services.NewProjectService(db, store, access)
	mailer := &capturingMailer{}
	email := services.NewEmailService(&config.EmailConfig{Enabled: true, Host: "smtp.example.com", From: "noreply@example.com", PublicURL: "https://teamhub.example.com"})
	email.SetMailer(mailer)
	notifications := services.NewNotificationService(db, hub, nil, email)
	invitations := services.NewInvitationService(store, access, projects, auth, notifications,
		&config.InvitationConfig{TTLDays: 7, CodeLength: 32})
	members := services.NewMemberService(store, access, projects, notifications)

	authHandler := NewAuthHandler(auth, email)
	projectHandler := NewProjectHandler(projects)
	memberHandler := NewMemberHandler(members, access)
	invitationHandler := NewInvitationHandler(invitations)
	notificationHandler := NewNotificationHandler(notifications)
	healthHandler := NewHealthHandler(db, hub, access)
	metricsHandler := NewMetricsHandler(db, hub, access)

	r := gin.New()
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", metricsHandler.Metrics)

	api := r.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/verify-email/confirm", authHandler.ConfirmEmail)

	authed := api.Group("")
	authed.Use(middleware.AuthRequired())
	authed.GET("/auth/me", authHandler.GetCurrentUser)
	authed.POST("/auth/verify-email", authHandler.RequestEmailVerification)
	authed.POST("/projects", projectHandler.Create)
	authed.GET("/projects/:id", middleware.ProjectPermission(access, models.PermRead), projectHandler.GetByID)
	authed.GET("/projects/:id/members", memberHandler.List)
	authed.GET("/projects/:id/access", memberHandler.Access)
	authed.POST("/projects/:id/invitations", invitationHandler.Create)
	authed.GET("/projects/:id/invitations", invitationHandler.ListForProject)
	authed.GET("/invitations", invitationHandler.ListMine)
	authed.GET("/invitations/:code", invitationHandler.Preview)
	authed.POST("/invitations/:code/accept", invitationHandler.Accept)
	authed.POST("/invitations/:code/decline", invitationHandler.Decline)
	authed.GET("/notifications/unread-count", notificationHandler.UnreadCount)

	return &testServer{router: r, db: db, auth: auth, projects: projects, mailer: mailer}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

// signup registers a user with a confirmed email and returns it with a bearer token.
func (s *testServer) signup(t *testing.T, email string) (*models.User, string) {
	t.Helper()
	u, err := s.auth.Register(&services.RegisterRequest{Email: email, Password: "password123", Name: email})
	require.NoError(t, err)
	u, err = s.auth.VerifyContacts(u.ID, true, false)
	require.NoError(t, err)
	token, err := utils.GenerateToken(u.ID, u.Email, u.Role, 1)
	require.NoError(t, err)
	return u, token
}

func (s *testServer) project(t *testing.T, owner *models.User) *models.Project {
	t.Helper()
	p, err := s.projects.Create(&services.CreateProjectRequest{Name: "Apollo"}, owner.ID)
	require.NoError(t, err)
	return p
}

func data(resp map[string]interface{}) map[string]interface{} {
	d, _ := resp["data"].(map[string]interface{})
	return d
}

func TestAuthHandler_RegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, "POST", "/api/auth/register", "", gin.H{"email": "Ann@Example.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "ann@example.com", data(resp)["email"])

	w, _ = s.do(t, "POST", "/api/auth/register", "", gin.H{"email": "ann@example.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, "POST", "/api/auth/register", "", gin.H{"email": "bob@example.com", "password": "password123", "phone": "call me"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "ann@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "ann@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := data(resp)["token"].(string)
	require.NotEmpty(t, token)

	w, resp = s.do(t, "GET", "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ann@example.com", data(resp)["email"])
}

func TestAuthHandler_EmailVerification(t *testing.T) {
	s := newTestServer(t)
	owner, ownerToken := s.signup(t, "owner@example.com")
	project := s.project(t, owner)

	w, resp := s.do(t, "POST", "/api/auth/register", "", gin.H{"email": "ann@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code, resp)

	w, resp = s.do(t, "POST", "/api/auth/register", "", gin.H{"email": "ann@example.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	annID := uint(data(resp)["id"].(float64))
	assert.Nil(t, data(resp)["email_verified_at"])
	w, resp = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "ann@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	annToken := data(resp)["token"].(string)

	w, _ = s.do(t, "POST", fmt.Sprintf("/api/projects/%d/invitations", project.ID), ownerToken, gin.H{"email": "ann@example.com", "role": "member"})
	require.Equal(t, http.StatusCreated, w.Code)

	// an unconfirmed address sees nothing
	w, resp = s.do(t, "GET", "/api/invitations", annToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 0)

	w, _ = s.do(t, "POST", "/api/auth/verify-email", annToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, s.mailer.sent, 1)
	assert.Equal(t, []string{"ann@example.com"}, s.mailer.sent[0].GetHeader("To"))

	w, _ = s.do(t, "POST", "/api/auth/verify-email/confirm", "", gin.H{"token": annToken})
	assert.Equal(t, http.StatusBadRequest, w.Code, "a session token is not a confirmation link")

	token, _, err := s.auth.IssueEmailVerification(annID)
	require.NoError(t, err)
	w, resp = s.do(t, "POST", "/api/auth/verify-email/confirm", "", gin.H{"token": token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, data(resp)["email_verified_at"])

	w, resp = s.do(t, "GET", "/api/invitations", annToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 1)

	w, resp = s.do(t, "POST", "/api/auth/verify-email", annToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "email already verified", data(resp)["message"])
	assert.Len(t, s.mailer.sent, 1)
}

func TestInvitationHandler_Flow(t *testing.T) {
	s := newTestServer(t)
	owner, ownerToken := s.signup(t, "owner@example.com")
	_, guestToken := s.signup(t, "guest@example.com")
	project := s.project(t, owner)
	invitePath := fmt.Sprintf("/api/projects/%d/invitations", project.ID)

	w, _ := s.do(t, "GET", fmt.Sprintf("/api/projects/%d", project.ID), guestToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, "POST", invitePath, ownerToken, gin.H{"email": "guest@example.com", "role": "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "owner role cannot be invited")

	w, _ = s.do(t, "POST", invitePath, guestToken, gin.H{"email": "someone@example.com", "role": "member"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp := s.do(t, "POST", invitePath, ownerToken, gin.H{"email": "Guest@Example.com", "role": "member"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	code, _ := data(resp)["invitation_code"].(string)
	require.NotEmpty(t, code)

	w, resp = s.do(t, "GET", "/api/notifications/unread-count", guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, data(resp)["count"])

	w, resp = s.do(t, "GET", "/api/invitations", guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 1)

	w, resp = s.do(t, "GET", "/api/invitations/"+code, guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, data(resp)["can_respond"])

	w, resp = s.do(t, "POST", "/api/invitations/"+code+"/accept", guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "member", data(resp)["role"])

	w, _ = s.do(t, "POST", "/api/invitations/"+code+"/accept", guestToken, nil)
	assert.Equal(t, http.StatusOK, w.Code, "accept is idempotent")

	w, resp = s.do(t, "GET", fmt.Sprintf("/api/projects/%d/access", project.ID), guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, data(resp)["has_access"])
	assert.Equal(t, "member", data(resp)["role"])

	w, resp = s.do(t, "GET", fmt.Sprintf("/api/projects/%d", project.ID), guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "member", data(resp)["role"])

	w, resp = s.do(t, "GET", fmt.Sprintf("/api/projects/%d/members", project.ID), guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 2)
}

func TestInvitationHandler_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	owner, ownerToken := s.signup(t, "owner@example.com")
	guest, guestToken := s.signup(t, "guest@example.com")
	_, strangerToken := s.signup(t, "stranger@example.com")
	project := s.project(t, owner)
	invitePath := fmt.Sprintf("/api/projects/%d/invitations", project.ID)

	invite := func() string {
		w, resp := s.do(t, "POST", invitePath, ownerToken, gin.H{"user_id": guest.ID, "role": "viewer"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return data(resp)["invitation_code"].(string)
	}

	w, _ := s.do(t, "POST", "/api/invitations/no-such-code/accept", guestToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	code := invite()
	w, _ = s.do(t, "POST", "/api/invitations/"+code+"/accept", strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, "POST", "/api/invitations/"+code+"/decline", guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, resp := s.do(t, "POST", "/api/invitations/"+code+"/accept", guestToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invitation was declined", resp["message"])

	code = invite()
	require.NoError(t, s.db.Model(&models.TeamInvitation{}).
		Where("invitation_code = ?", code).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)
	w, _ = s.do(t, "POST", "/api/invitations/"+code+"/accept", guestToken, nil)
	assert.Equal(t, http.StatusGone, w.Code)

	w, _ = s.do(t, "POST", "/api/projects/9999/invitations", ownerToken, gin.H{"user_id": guest.ID, "role": "viewer"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, "GET", invitePath+"?status=bogus", ownerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = s.do(t, "GET", invitePath+"?status=expired", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 1)
}

func TestInvitationHandler_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, "GET", "/api/invitations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])

	w, _ = s.do(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "teamhub_invitations_pending 0"), body)
	assert.True(t, strings.Contains(body, "# TYPE teamhub_sse_active_clients gauge"), body)
}
