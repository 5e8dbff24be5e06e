package jobs

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

var admin = database.User{Role: database.RoleAdmin}

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

func seedJob(t *testing.T, db *gorm.DB, title, location string, age time.Duration) database.Job {
	t.Helper()
	job := database.Job{Title: title, Location: location}
	job.CreatedAt = time.Now().Add(-age)
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job %q: %v", title, err)
	}
	return job
}

func TestCreateRequiresAdmin(t *testing.T) {
	svc := NewService(newTestDB(t))
	plain := database.User{Role: database.RoleUser}

	if _, err := svc.Create(context.Background(), plain, Fields{Title: "DBA"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSearchFiltersAndOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	older := seedJob(t, db, "Senior Go Developer", "Berlin", 2*time.Hour)
	newer := seedJob(t, db, "Go Developer", "Berlin", time.Hour)
	seedJob(t, db, "Go Developer", "Madrid", 30*time.Minute)
	seedJob(t, db, "Product Manager", "Berlin", 10*time.Minute)

	got, err := svc.Search(ctx, SearchQuery{Title: "go developer", Location: "BERLIN"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Fatalf("expected newest-first order [%d %d], got [%d %d]", newer.ID, older.ID, got[0].ID, got[1].ID)
	}
}

func TestSearchEmptyQueryReturnsAll(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	seedJob(t, db, "One", "A", time.Hour)
	seedJob(t, db, "Two", "B", time.Minute)

	got, err := svc.Search(context.Background(), SearchQuery{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected all jobs on empty query, got %d", len(got))
	}
}

func TestSimilarTo(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	base := seedJob(t, db, "Backend Engineer", "Berlin", 5*time.Hour)
	sameCity := seedJob(t, db, "Data Analyst", "Berlin", 4*time.Hour)
	sameSeries := seedJob(t, db, "Backend Developer", "Madrid", 3*time.Hour)
	seedJob(t, db, "Frontend Developer", "Madrid", 2*time.Hour)
	extra1 := seedJob(t, db, "Backend Intern", "Berlin", time.Hour)
	extra2 := seedJob(t, db, "Support Agent", "Berlin", 30*time.Minute)

	got, err := svc.SimilarTo(ctx, base.ID)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected at most 3 similar jobs, got %d", len(got))
	}
	for _, j := range got {
		if j.ID == base.ID {
			t.Fatal("similar list must not contain the job itself")
		}
	}
	// 最新的三个匹配：extra2（同城）、extra1（同城）、sameSeries（首词相同）
	wantIDs := map[uint]bool{extra2.ID: true, extra1.ID: true, sameSeries.ID: true}
	for _, j := range got {
		if !wantIDs[j.ID] {
			t.Fatalf("unexpected job %d (%q, %q) in similar list", j.ID, j.Title, j.Location)
		}
		if j.ID == sameCity.ID {
			t.Fatal("oldest match should fall outside the limit of 3")
		}
	}
}

func TestSimilarToMatchesWholeFirstWord(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	base := seedJob(t, db, "Senior Backend Engineer", "Berlin", 3*time.Hour)
	analyst := seedJob(t, db, "Senior Analyst", "Madrid", 2*time.Hour)
	// 首词只做整词比较，"Seniority" 不应被当作 "Senior" 的同系列
	coach := seedJob(t, db, "Seniority Coach", "Madrid", time.Hour)

	got, err := svc.SimilarTo(ctx, base.ID)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 similar job, got %d", len(got))
	}
	if got[0].ID != analyst.ID {
		t.Fatalf("expected job %d (%q), got %d (%q)", analyst.ID, analyst.Title, got[0].ID, got[0].Title)
	}
	for _, j := range got {
		if j.ID == coach.ID {
			t.Fatal("prefix-only title match must not count as similar")
		}
	}
}

func TestSimilarToMissingJob(t *testing.T) {
	svc := NewService(newTestDB(t))
	if _, err := svc.SimilarTo(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestLimits(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	for i := 0; i < 12; i++ {
		seedJob(t, db, fmt.Sprintf("Job %d", i), "Berlin", time.Duration(12-i)*time.Minute)
	}

	got, err := svc.Latest(context.Background(), 0)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected default limit of 10, got %d", len(got))
	}
	if got[0].Title != "Job 11" {
		t.Fatalf("expected newest job first, got %q", got[0].Title)
	}
}

func TestDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	job, err := svc.Create(ctx, admin, Fields{Title: "SRE", Location: "Remote"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := svc.ReplaceSkills(ctx, admin, job.ID, []string{"Go", "Kubernetes"}); err != nil {
		t.Fatalf("replace skills: %v", err)
	}
	if err := svc.ReplaceLanguages(ctx, admin, job.ID, []string{"English"}); err != nil {
		t.Fatalf("replace languages: %v", err)
	}

	user := database.User{Username: "u1", Email: "u1@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	r := database.Resume{UserID: user.ID, Name: "U", Contact: "u1@example.com"}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("create resume: %v", err)
	}
	app := database.Application{UserID: user.ID, JobID: job.ID, ResumeID: r.ID}
	if err := db.Create(&app).Error; err != nil {
		t.Fatalf("create application: %v", err)
	}

	if err := svc.Delete(ctx, admin, job.ID); err != nil {
		t.Fatalf("delete job: %v", err)
	}

	var count int64
	db.Model(&database.Application{}).Where("job_id = ?", job.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected applications removed with job, found %d", count)
	}
	db.Model(&database.Skill{}).Where("job_id = ?", job.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected skills removed with job, found %d", count)
	}
	if _, err := svc.Get(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestReplaceTagsUnknownTag(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	job, err := svc.Create(ctx, admin, Fields{Title: "QA", Location: "Remote"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := svc.ReplaceTags(ctx, admin, job.ID, []uint{12345}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown tag, got %v", err)
	}

	tag := database.Tag{Name: "remote"}
	if err := db.Create(&tag).Error; err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if err := svc.ReplaceTags(ctx, admin, job.ID, []uint{tag.ID}); err != nil {
		t.Fatalf("replace tags: %v", err)
	}

	got, err := svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "remote" {
		t.Fatalf("expected tag %q attached, got %+v", "remote", got.Tags)
	}
}
