package resume

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"jobsdb/internal/database"
)

// ErrNotFound 表示该用户尚未创建简历。
var ErrNotFound = errors.New("resume not found")

// Fields 是简历的全部可编辑字段。Upsert 会整体覆盖，旧内容不可恢复。
type Fields struct {
	Name         string
	Gender       string
	Age          int
	Education    string
	Contact      string
	Experience   string
	Introduction string
}

// Service 维护每用户一份的简历档案。
type Service struct {
	db *gorm.DB
}

// NewService 构造简历服务。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetByUser 返回指定用户的简历。
func (s *Service) GetByUser(ctx context.Context, userID uint) (database.Resume, error) {
	var r database.Resume
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Resume{}, ErrNotFound
		}
		return database.Resume{}, fmt.Errorf("query resume: %w", err)
	}
	return r, nil
}

// Upsert 创建或整体覆盖用户简历，updated_at 随每次修改前移。
// user_id 上的唯一索引保证并发创建也只会留下一份。
func (s *Service) Upsert(ctx context.Context, userID uint, fields Fields) (database.Resume, error) {
	r := database.Resume{
		UserID:       userID,
		Name:         fields.Name,
		Gender:       fields.Gender,
		Age:          fields.Age,
		Education:    fields.Education,
		Contact:      fields.Contact,
		Experience:   fields.Experience,
		Introduction: fields.Introduction,
	}

	err := s.db.WithContext(ctx).Create(&r).Error
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return database.Resume{}, fmt.Errorf("create resume: %w", err)
	}

	// 已存在：覆盖全部字段（附件引用单独维护，不在覆盖范围内）。
	updates := map[string]any{
		"name":         fields.Name,
		"gender":       fields.Gender,
		"age":          fields.Age,
		"education":    fields.Education,
		"contact":      fields.Contact,
		"experience":   fields.Experience,
		"introduction": fields.Introduction,
	}
	if err := s.db.WithContext(ctx).Model(&database.Resume{}).
		Where("user_id = ?", userID).
		Updates(updates).Error; err != nil {
		return database.Resume{}, fmt.Errorf("update resume: %w", err)
	}

	return s.GetByUser(ctx, userID)
}

// SetAttachment 记录简历附件的对象存储 Key；核心只保存引用，不保存内容。
func (s *Service) SetAttachment(ctx context.Context, userID uint, objectKey string) (database.Resume, error) {
	result := s.db.WithContext(ctx).Model(&database.Resume{}).
		Where("user_id = ?", userID).
		Update("attachment_key", objectKey)
	if result.Error != nil {
		return database.Resume{}, fmt.Errorf("set attachment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.Resume{}, ErrNotFound
	}
	return s.GetByUser(ctx, userID)
}
