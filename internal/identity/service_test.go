package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"jobsdb/internal/database"
)

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

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != database.RoleUser {
		t.Fatalf("expected default role %q, got %q", database.RoleUser, user.Role)
	}
	if user.PasswordHash == "s3cret-pass" {
		t.Fatal("password stored in plaintext")
	}

	got, err := svc.Authenticate(ctx, "alice@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, got.ID)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob", "bob@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Register(ctx, "bob", "other@example.com", "s3cret-pass"); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity for duplicate username, got %v", err)
	}
	if _, err := svc.Register(ctx, "bob2", "bob@example.com", "s3cret-pass"); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity for duplicate email, got %v", err)
	}
}

func TestAuthenticateRejectsBadCredential(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	if _, err := svc.Register(ctx, "carol", "carol@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "carol@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for wrong password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for unknown email, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	user, err := svc.Register(ctx, "dave", "dave@example.com", "old-password")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := db.Model(&database.User{}).Where("id = ?", user.ID).Update("must_change_password", true).Error; err != nil {
		t.Fatalf("mark must_change_password: %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong-old", "new-password"); !errors.Is(err, ErrWrongCurrentPassword) {
		t.Fatalf("expected ErrWrongCurrentPassword, got %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "old-password", "new-password"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	got, err := svc.Authenticate(ctx, "dave@example.com", "new-password")
	if err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
	if got.MustChangePassword {
		t.Fatal("must_change_password should be cleared after a successful change")
	}
	if _, err := svc.Authenticate(ctx, "dave@example.com", "old-password"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("old password should no longer work, got %v", err)
	}
}

func TestSetRole(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	admin, err := svc.Register(ctx, "root", "root@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	admin.Role = database.RoleAdmin

	target, err := svc.Register(ctx, "erin", "erin@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("register target: %v", err)
	}

	plain := database.User{Role: database.RoleUser}
	if err := svc.SetRole(ctx, plain, target.ID, database.RoleAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin actor, got %v", err)
	}

	if err := svc.SetRole(ctx, admin, target.ID, database.Role("superuser")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole for unknown role, got %v", err)
	}

	if err := svc.SetRole(ctx, admin, target.ID, database.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	got, err := svc.Get(ctx, target.ID)
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if got.Role != database.RoleAdmin {
		t.Fatalf("expected role %q, got %q", database.RoleAdmin, got.Role)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	admin := database.User{Role: database.RoleAdmin}

	user, err := svc.Register(ctx, "frank", "frank@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	r := database.Resume{UserID: user.ID, Name: "Frank", Contact: "frank@example.com"}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("create resume: %v", err)
	}
	job := database.Job{Title: "Backend Engineer", Location: "Berlin"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	app := database.Application{UserID: user.ID, JobID: job.ID, ResumeID: r.ID}
	if err := db.Create(&app).Error; err != nil {
		t.Fatalf("create application: %v", err)
	}

	if err := svc.Delete(ctx, admin, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	var count int64
	db.Model(&database.Resume{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected resume to be removed, found %d", count)
	}
	db.Model(&database.Application{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected applications to be removed, found %d", count)
	}
	if _, err := svc.Get(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeletedIdentityStaysReserved(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	admin := database.User{Role: database.RoleAdmin}

	user, err := svc.Register(ctx, "gone", "gone@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Delete(ctx, admin, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// 软删除的行仍占用唯一索引，用户名/邮箱不可复用
	if _, err := svc.Register(ctx, "gone", "fresh@example.com", "s3cret-pass"); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity for reused username, got %v", err)
	}
	if _, err := svc.Register(ctx, "fresh", "gone@example.com", "s3cret-pass"); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity for reused email, got %v", err)
	}
}
