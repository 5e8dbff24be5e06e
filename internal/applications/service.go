package applications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"jobsdb/internal/database"
)

var (
	ErrNoResumeOnFile = errors.New("resume required before applying")
	ErrAlreadyApplied = errors.New("already applied to this job")
	ErrNotFound       = errors.New("application not found")
	ErrInvalidStatus  = errors.New("unrecognized application status")
	ErrUnauthorized   = errors.New("admin role required")
)

// StatusNotifier 把状态变更通知交给外部协作方（队列）。
// 通知是尽力而为的：入队失败只记日志，不影响状态变更本身。
type StatusNotifier interface {
	NotifyStatusChanged(ctx context.Context, app database.Application) error
}

// Service 维护投递台账：创建投递、状态流转与列表查询。
type Service struct {
	db       *gorm.DB
	notifier StatusNotifier
	logger   *slog.Logger
}

// NewService 构造投递服务；notifier 可为 nil（例如测试或单机部署）。
func NewService(db *gorm.DB, notifier StatusNotifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, notifier: notifier, logger: logger}
}

// Apply 为用户创建对指定职位的投递。
// 前置条件：用户已有简历；该 (user, job) 尚无投递记录。
// 投递会快照当前简历 ID，之后编辑简历不回溯已投递内容。
func (s *Service) Apply(ctx context.Context, userID, jobID uint) (database.Application, error) {
	var r database.Resume
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Application{}, ErrNoResumeOnFile
		}
		return database.Application{}, fmt.Errorf("query resume: %w", err)
	}

	var job database.Job
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Application{}, ErrNotFound
		}
		return database.Application{}, fmt.Errorf("query job: %w", err)
	}

	app := database.Application{
		UserID:   userID,
		JobID:    jobID,
		ResumeID: r.ID,
		Status:   database.StatusPending,
	}

	// (user_id, job_id) 唯一索引兜底并发重复投递。
	if err := s.db.WithContext(ctx).Create(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return database.Application{}, ErrAlreadyApplied
		}
		return database.Application{}, fmt.Errorf("create application: %w", err)
	}

	return app, nil
}

// SetStatus 更新投递状态，仅管理员可执行。
// 四个枚举值之间允许任意流转（与线上行为一致）；枚举之外的取值
// 返回 ErrInvalidStatus 且原状态保持不变。
func (s *Service) SetStatus(ctx context.Context, actor database.User, applicationID uint, status database.ApplicationStatus) (database.Application, error) {
	if actor.Role != database.RoleAdmin {
		return database.Application{}, ErrUnauthorized
	}
	if !status.Valid() {
		return database.Application{}, ErrInvalidStatus
	}

	var app database.Application
	if err := s.db.WithContext(ctx).First(&app, applicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Application{}, ErrNotFound
		}
		return database.Application{}, fmt.Errorf("query application: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&app).Update("status", status).Error; err != nil {
		return database.Application{}, fmt.Errorf("update status: %w", err)
	}

	if err := s.db.WithContext(ctx).First(&app, applicationID).Error; err != nil {
		return database.Application{}, fmt.Errorf("reload application: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyStatusChanged(ctx, app); err != nil {
			s.logger.Warn("enqueue status notification failed",
				slog.Uint64("application_id", uint64(app.ID)),
				slog.Any("error", err),
			)
		}
	}

	return app, nil
}

// ListByUser 返回用户自己的投递，按创建时间倒序。
func (s *Service) ListByUser(ctx context.Context, userID uint) ([]database.Application, error) {
	var apps []database.Application
	if err := s.db.WithContext(ctx).
		Preload("Job").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// ListAll 返回全部投递供管理员审阅，按创建时间倒序。
func (s *Service) ListAll(ctx context.Context, actor database.User) ([]database.Application, error) {
	if actor.Role != database.RoleAdmin {
		return nil, ErrUnauthorized
	}

	var apps []database.Application
	if err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Job").
		Preload("Resume").
		Order("created_at DESC").
		Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// Get 返回单条投递（含关联），投递人本人或管理员可见。
func (s *Service) Get(ctx context.Context, actor database.User, applicationID uint) (database.Application, error) {
	var app database.Application
	if err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Job").
		Preload("Resume").
		First(&app, applicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Application{}, ErrNotFound
		}
		return database.Application{}, fmt.Errorf("query application: %w", err)
	}

	if actor.Role != database.RoleAdmin && actor.ID != app.UserID {
		return database.Application{}, ErrUnauthorized
	}
	return app, nil
}

// CountAll 统计投递总数，用于后台概览。
func (s *Service) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Application{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return count, nil
}
