package resume

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

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

func newTestUser(t *testing.T, db *gorm.DB, username string) database.User {
	t.Helper()
	user := database.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestGetByUserMissing(t *testing.T) {
	svc := NewService(newTestDB(t))

	if _, err := svc.GetByUser(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertCreatesThenOverwrites(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	user := newTestUser(t, db, "alice")

	first, err := svc.Upsert(ctx, user.ID, Fields{
		Name:       "Alice",
		Age:        28,
		Education:  "BSc Computer Science",
		Contact:    "alice@example.com",
		Experience: "3 years backend",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// 回拨时间戳，便于断言覆盖写前移 updated_at 而 created_at 不变
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := db.Model(&database.Resume{}).Where("id = ?", first.ID).
		UpdateColumns(map[string]any{"created_at": past, "updated_at": past}).Error; err != nil {
		t.Fatalf("backdate resume: %v", err)
	}

	second, err := svc.Upsert(ctx, user.ID, Fields{
		Name:    "Alice M.",
		Age:     29,
		Contact: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert created a second resume: %d != %d", second.ID, first.ID)
	}

	got, err := svc.GetByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Alice M." || got.Age != 29 {
		t.Fatalf("resume not overwritten: %+v", got)
	}
	if got.Education != "" {
		t.Fatalf("overwrite should clear omitted fields, got education %q", got.Education)
	}
	if !got.UpdatedAt.After(past) {
		t.Fatalf("updated_at must advance on overwrite: %v not after %v", got.UpdatedAt, past)
	}
	if got.CreatedAt.Unix() != past.Unix() {
		t.Fatalf("created_at must not change on overwrite: %v != %v", got.CreatedAt, past)
	}

	var count int64
	db.Model(&database.Resume{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one resume per user, found %d", count)
	}
}

func TestUpsertKeepsAttachment(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	user := newTestUser(t, db, "bob")

	if _, err := svc.Upsert(ctx, user.ID, Fields{Name: "Bob", Contact: "bob@example.com"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := svc.SetAttachment(ctx, user.ID, "resume-attachments/1/abc.pdf"); err != nil {
		t.Fatalf("set attachment: %v", err)
	}

	if _, err := svc.Upsert(ctx, user.ID, Fields{Name: "Bob Jr.", Contact: "bob@example.com"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := svc.GetByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AttachmentKey != "resume-attachments/1/abc.pdf" {
		t.Fatalf("attachment lost on profile overwrite: %q", got.AttachmentKey)
	}
}

func TestSetAttachmentWithoutResume(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := newTestUser(t, db, "carol")

	if _, err := svc.SetAttachment(context.Background(), user.ID, "key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
