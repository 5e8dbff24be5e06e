package applications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"jobsdb/internal/database"
)

var admin = database.User{Role: database.RoleAdmin}

type recordingNotifier struct {
	notified []database.Application
	fail     error
}

func (n *recordingNotifier) NotifyStatusChanged(_ context.Context, app database.Application) error {
	if n.fail != nil {
		return n.fail
	}
	n.notified = append(n.notified, app)
	return nil
}

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

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingNotifier) {
	t.Helper()
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	return NewService(db, notifier, slog.Default()), db, notifier
}

func seedApplicant(t *testing.T, db *gorm.DB, username string) (database.User, database.Resume) {
	t.Helper()
	user := database.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	r := database.Resume{UserID: user.ID, Name: username, Contact: user.Email}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("create resume: %v", err)
	}
	return user, r
}

func seedJob(t *testing.T, db *gorm.DB, title string) database.Job {
	t.Helper()
	job := database.Job{Title: title, Location: "Berlin"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestApplyRequiresResume(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	user := database.User{Username: "noresume", Email: "noresume@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	job := seedJob(t, db, "DBA")

	if _, err := svc.Apply(ctx, user.ID, job.ID); !errors.Is(err, ErrNoResumeOnFile) {
		t.Fatalf("expected ErrNoResumeOnFile, got %v", err)
	}
}

func TestApplySnapshotsResume(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	user, r := seedApplicant(t, db, "alice")
	job := seedJob(t, db, "Backend Engineer")

	app, err := svc.Apply(ctx, user.ID, job.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if app.Status != database.StatusPending {
		t.Fatalf("expected initial status %q, got %q", database.StatusPending, app.Status)
	}
	if app.ResumeID != r.ID {
		t.Fatalf("expected resume snapshot %d, got %d", r.ID, app.ResumeID)
	}
}

func TestApplyTwiceRejected(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	user, _ := seedApplicant(t, db, "bob")
	job := seedJob(t, db, "SRE")

	if _, err := svc.Apply(ctx, user.ID, job.ID); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := svc.Apply(ctx, user.ID, job.ID); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected ErrAlreadyApplied, got %v", err)
	}

	// 另一个职位仍可投递
	other := seedJob(t, db, "QA")
	if _, err := svc.Apply(ctx, user.ID, other.ID); err != nil {
		t.Fatalf("apply to second job: %v", err)
	}
}

func TestApplyMissingJob(t *testing.T) {
	svc, db, _ := newTestService(t)

	user, _ := seedApplicant(t, db, "carol")
	if _, err := svc.Apply(context.Background(), user.ID, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	svc, db, notifier := newTestService(t)
	ctx := context.Background()

	user, _ := seedApplicant(t, db, "dave")
	job := seedJob(t, db, "Platform Engineer")
	app, err := svc.Apply(ctx, user.ID, job.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// 回拨时间戳，便于断言 updated_at 前移而 created_at 不变
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := db.Model(&database.Application{}).Where("id = ?", app.ID).
		UpdateColumns(map[string]any{"created_at": past, "updated_at": past}).Error; err != nil {
		t.Fatalf("backdate application: %v", err)
	}

	if _, err := svc.SetStatus(ctx, database.User{Role: database.RoleUser}, app.ID, database.StatusAccepted); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin, got %v", err)
	}

	if _, err := svc.SetStatus(ctx, admin, app.ID, database.ApplicationStatus("Shortlisted")); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	got, err := svc.Get(ctx, admin, app.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != database.StatusPending {
		t.Fatalf("status must be unchanged after rejected update, got %q", got.Status)
	}

	updated, err := svc.SetStatus(ctx, admin, app.ID, database.StatusReviewed)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Status != database.StatusReviewed {
		t.Fatalf("expected %q, got %q", database.StatusReviewed, updated.Status)
	}
	if !updated.UpdatedAt.After(past) {
		t.Fatalf("updated_at must advance on status change: %v not after %v", updated.UpdatedAt, past)
	}
	if updated.CreatedAt.Unix() != past.Unix() {
		t.Fatalf("created_at must not change on status change: %v != %v", updated.CreatedAt, past)
	}
	if len(notifier.notified) != 1 || notifier.notified[0].ID != app.ID {
		t.Fatalf("expected one notification for application %d, got %+v", app.ID, notifier.notified)
	}

	// 枚举内任意流转：Reviewed 可以直接回到 Pending
	if _, err := svc.SetStatus(ctx, admin, app.ID, database.StatusPending); err != nil {
		t.Fatalf("set status back to pending: %v", err)
	}
}

func TestSetStatusSurvivesNotifierFailure(t *testing.T) {
	svc, db, notifier := newTestService(t)
	ctx := context.Background()
	notifier.fail = errors.New("queue down")

	user, _ := seedApplicant(t, db, "erin")
	job := seedJob(t, db, "Data Engineer")
	app, err := svc.Apply(ctx, user.ID, job.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	updated, err := svc.SetStatus(ctx, admin, app.ID, database.StatusRejected)
	if err != nil {
		t.Fatalf("status change must not fail on notifier error: %v", err)
	}
	if updated.Status != database.StatusRejected {
		t.Fatalf("expected %q, got %q", database.StatusRejected, updated.Status)
	}
}

func TestListByUserNewestFirst(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	user, r := seedApplicant(t, db, "frank")
	first := seedJob(t, db, "First")
	second := seedJob(t, db, "Second")

	old := database.Application{UserID: user.ID, JobID: first.ID, ResumeID: r.ID}
	old.CreatedAt = time.Now().Add(-time.Hour)
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("create old application: %v", err)
	}
	if _, err := svc.Apply(ctx, user.ID, second.ID); err != nil {
		t.Fatalf("apply: %v", err)
	}

	list, err := svc.ListByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 applications, got %d", len(list))
	}
	if list[0].JobID != second.ID {
		t.Fatalf("expected newest application first, got job %d", list[0].JobID)
	}
	if list[0].Job.Title != "Second" {
		t.Fatalf("expected job preloaded, got %+v", list[0].Job)
	}
}

func TestGetIsOwnerOrAdmin(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	owner, _ := seedApplicant(t, db, "gina")
	stranger, _ := seedApplicant(t, db, "hank")
	job := seedJob(t, db, "Analyst")

	app, err := svc.Apply(ctx, owner.ID, job.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, err := svc.Get(ctx, owner, app.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := svc.Get(ctx, admin, app.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	if _, err := svc.Get(ctx, stranger, app.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for stranger, got %v", err)
	}
}
