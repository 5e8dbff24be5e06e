package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"jobsdb/internal/applications"
	"jobsdb/internal/database"
)

type noopNotifier struct{}

func (noopNotifier) NotifyStatusChanged(context.Context, database.Application) error { return nil }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// identityStub 模拟鉴权中间件写入的上下文键。
func identityStub(userID uint, role database.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("userRole", role)
		c.Set("mustChangePassword", false)
		c.Next()
	}
}

func newApplicationRouter(t *testing.T, db *gorm.DB, userID uint, role database.Role) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := applications.NewService(db, noopNotifier{}, slog.Default())
	handler := NewApplicationHandler(svc, slog.Default())

	router := gin.New()
	group := router.Group("/v1", identityStub(userID, role))
	group.POST("/applications", handler.Apply)
	group.GET("/applications", handler.ListMine)
	group.PUT("/admin/applications/:id/status", handler.SetStatus)
	return router
}

func seedApplicant(t *testing.T, db *gorm.DB, username string) database.User {
	t.Helper()
	user := database.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	r := database.Resume{UserID: user.ID, Name: username, Contact: user.Email}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("create resume: %v", err)
	}
	return user
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestApplyEndpoint(t *testing.T) {
	db := newTestDB(t)
	user := seedApplicant(t, db, "alice")
	job := database.Job{Title: "Backend Engineer", Location: "Berlin"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}

	router := newApplicationRouter(t, db, user.ID, database.RoleUser)

	w := doJSON(t, router, http.MethodPost, "/v1/applications", gin.H{"job_id": job.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// 重复投递同一职位被拒绝
	w = doJSON(t, router, http.MethodPost, "/v1/applications", gin.H{"job_id": job.ID})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate apply, got %d: %s", w.Code, w.Body.String())
	}

	// 不存在的职位
	w = doJSON(t, router, http.MethodPost, "/v1/applications", gin.H{"job_id": 999})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing job, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/v1/applications", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Items []struct {
			JobID  uint   `json:"job_id"`
			Status string `json:"status"`
		} `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Status != string(database.StatusPending) {
		t.Fatalf("unexpected applications list: %+v", resp.Items)
	}
}

func TestApplyWithoutResume(t *testing.T) {
	db := newTestDB(t)
	user := database.User{Username: "noresume", Email: "noresume@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	job := database.Job{Title: "DBA", Location: "Remote"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}

	router := newApplicationRouter(t, db, user.ID, database.RoleUser)

	w := doJSON(t, router, http.MethodPost, "/v1/applications", gin.H{"job_id": job.ID})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 without resume, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSetStatusEndpoint(t *testing.T) {
	db := newTestDB(t)
	user := seedApplicant(t, db, "bob")
	job := database.Job{Title: "SRE", Location: "Remote"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	app := database.Application{UserID: user.ID, JobID: job.ID, ResumeID: 1, Status: database.StatusPending}
	if err := db.Create(&app).Error; err != nil {
		t.Fatalf("create application: %v", err)
	}

	adminUser := database.User{Username: "root", Email: "root@example.com", PasswordHash: "x", Role: database.RoleAdmin}
	if err := db.Create(&adminUser).Error; err != nil {
		t.Fatalf("create admin: %v", err)
	}

	adminRouter := newApplicationRouter(t, db, adminUser.ID, database.RoleAdmin)
	path := fmt.Sprintf("/v1/admin/applications/%d/status", app.ID)

	w := doJSON(t, adminRouter, http.MethodPut, path, gin.H{"status": "Accepted"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, adminRouter, http.MethodPut, path, gin.H{"status": "Shortlisted"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d: %s", w.Code, w.Body.String())
	}

	userRouter := newApplicationRouter(t, db, user.ID, database.RoleUser)
	w = doJSON(t, userRouter, http.MethodPut, path, gin.H{"status": "Rejected"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d: %s", w.Code, w.Body.String())
	}

	var got database.Application
	if err := db.First(&got, app.ID).Error; err != nil {
		t.Fatalf("reload application: %v", err)
	}
	if got.Status != database.StatusAccepted {
		t.Fatalf("expected status to remain %q, got %q", database.StatusAccepted, got.Status)
	}
}
