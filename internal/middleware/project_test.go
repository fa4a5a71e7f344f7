package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/internal/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

func newPermissionRouter(t *testing.T) (*gin.Engine, *models.Project) {
	t.Helper()

	dsn := fmt.Sprintf("file:middleware_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := models.AutoMigrate(db); err != nil {
		t.Fatal(err)
	}

	access := services.NewAccessService(db, nil)
	projects := services.NewProjectService(db, services.NewInvitationStore(db), access)
	project, err := projects.Create(&services.CreateProjectRequest{Name: "Apollo"}, 1)
	if err != nil {
		t.Fatal(err)
	}

	router := gin.New()
	router.Use(func(c *gin.Context) {
		var uid uint
		fmt.Sscan(c.GetHeader("X-Test-User"), &uid)
		c.Set(ContextUserID, uid)
		c.Next()
	})
	router.GET("/projects/:id", ProjectPermission(access, models.PermRead), func(c *gin.Context) {
		c.JSON(200, gin.H{"role": GetAccess(c).Role})
	})
	return router, project
}

func TestProjectPermission(t *testing.T) {
	router, project := newPermissionRouter(t)

	testCases := []struct {
		name   string
		path   string
		user   string
		status int
	}{
		{"owner", fmt.Sprintf("/projects/%d", project.ID), "1", http.StatusOK},
		{"non member", fmt.Sprintf("/projects/%d", project.ID), "2", http.StatusForbidden},
		{"unknown project", "/projects/9999", "1", http.StatusNotFound},
		{"malformed id", "/projects/abc", "1", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", tc.path, nil)
			req.Header.Set("X-Test-User", tc.user)
			router.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Errorf("expected status %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
		})
	}
}
