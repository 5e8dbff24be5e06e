package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"jobsdb/internal/database"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrUnauthorized = errors.New("admin role required")
)

// Fields 是职位的可编辑字段集合。薪资按自由文本保存。
type Fields struct {
	Title        string
	Description  string
	Requirements string
	Location     string
	Salary       string
	ContactInfo  string
}

// SearchQuery 描述职位检索条件；空字段不参与过滤。
type SearchQuery struct {
	Title    string
	Location string
	Salary   string
}

// Service 管理职位目录。发布、修改、删除都要求管理员角色。
type Service struct {
	db *gorm.DB
}

// NewService 构造职位服务。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Create 发布新职位，记录发布人。
func (s *Service) Create(ctx context.Context, actor database.User, fields Fields) (database.Job, error) {
	if actor.Role != database.RoleAdmin {
		return database.Job{}, ErrUnauthorized
	}

	job := database.Job{
		Title:        fields.Title,
		Description:  fields.Description,
		Requirements: fields.Requirements,
		Location:     fields.Location,
		Salary:       fields.Salary,
		ContactInfo:  fields.ContactInfo,
		PostedBy:     actor.ID,
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return database.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Update 覆盖职位字段。
func (s *Service) Update(ctx context.Context, actor database.User, jobID uint, fields Fields) (database.Job, error) {
	if actor.Role != database.RoleAdmin {
		return database.Job{}, ErrUnauthorized
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return database.Job{}, err
	}

	updates := map[string]any{
		"title":        fields.Title,
		"description":  fields.Description,
		"requirements": fields.Requirements,
		"location":     fields.Location,
		"salary":       fields.Salary,
		"contact_info": fields.ContactInfo,
	}
	if err := s.db.WithContext(ctx).Model(&job).Updates(updates).Error; err != nil {
		return database.Job{}, fmt.Errorf("update job: %w", err)
	}
	return s.Get(ctx, jobID)
}

// Delete 删除职位并级联清理其投递记录、技能/语言要求与标签关联，
// 保证不留孤儿行。
func (s *Service) Delete(ctx context.Context, actor database.User, jobID uint) error {
	if actor.Role != database.RoleAdmin {
		return ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job database.Job
		if err := tx.First(&job, jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("query job: %w", err)
		}

		if err := tx.Where("job_id = ?", jobID).Delete(&database.Application{}).Error; err != nil {
			return fmt.Errorf("delete applications: %w", err)
		}
		if err := tx.Where("job_id = ?", jobID).Delete(&database.Skill{}).Error; err != nil {
			return fmt.Errorf("delete skills: %w", err)
		}
		if err := tx.Where("job_id = ?", jobID).Delete(&database.Language{}).Error; err != nil {
			return fmt.Errorf("delete languages: %w", err)
		}
		if err := tx.Model(&job).Association("Tags").Clear(); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}
		if err := tx.Delete(&job).Error; err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		return nil
	})
}

// Get 返回职位详情（含技能、语言与标签）。
func (s *Service) Get(ctx context.Context, jobID uint) (database.Job, error) {
	var job database.Job
	if err := s.db.WithContext(ctx).
		Preload("Skills").
		Preload("Languages").
		Preload("Tags").
		First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Job{}, ErrNotFound
		}
		return database.Job{}, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// Latest 返回最新发布的职位，limit 非正时取 10。
func (s *Service) Latest(ctx context.Context, limit int) ([]database.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	var jobs []database.Job
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Search 按标题/地点/薪资做大小写不敏感的子串匹配，条件取 AND，
// 结果按发布时间倒序。
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]database.Job, error) {
	query := s.db.WithContext(ctx).Model(&database.Job{})

	if q.Title != "" {
		query = query.Where("LOWER(title) LIKE ?", containsPattern(q.Title))
	}
	if q.Location != "" {
		query = query.Where("LOWER(location) LIKE ?", containsPattern(q.Location))
	}
	if q.Salary != "" {
		query = query.Where("LOWER(salary) LIKE ?", containsPattern(q.Salary))
	}

	var jobs []database.Job
	if err := query.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("search jobs: %w", err)
	}
	return jobs, nil
}

// SimilarTo 返回至多 3 个相似职位：同地点，或标题首词相同，排除自身。
func (s *Service) SimilarTo(ctx context.Context, jobID uint) ([]database.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&database.Job{}).Where("id <> ?", job.ID)

	// 首词按整词匹配，避免 "Senior" 命中 "Seniority Coach" 这类前缀串。
	firstWord := strings.ToLower(titleFirstWord(job.Title))
	if firstWord != "" {
		query = query.Where(
			"LOWER(location) = ? OR LOWER(title) = ? OR LOWER(title) LIKE ?",
			strings.ToLower(job.Location),
			firstWord,
			firstWord+" %",
		)
	} else {
		query = query.Where("LOWER(location) = ?", strings.ToLower(job.Location))
	}

	var jobs []database.Job
	if err := query.Order("created_at DESC").Limit(3).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("query similar jobs: %w", err)
	}
	return jobs, nil
}

// ReplaceSkills 整体替换职位的技能要求。
func (s *Service) ReplaceSkills(ctx context.Context, actor database.User, jobID uint, names []string) error {
	return s.replaceOwned(ctx, actor, jobID, func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", jobID).Delete(&database.Skill{}).Error; err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.Create(&database.Skill{JobID: jobID, Name: name}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceLanguages 整体替换职位的语言要求。
func (s *Service) ReplaceLanguages(ctx context.Context, actor database.User, jobID uint, names []string) error {
	return s.replaceOwned(ctx, actor, jobID, func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", jobID).Delete(&database.Language{}).Error; err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.Create(&database.Language{JobID: jobID, Name: name}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceTags 整体替换职位挂载的标签（多对多）。
func (s *Service) ReplaceTags(ctx context.Context, actor database.User, jobID uint, tagIDs []uint) error {
	if actor.Role != database.RoleAdmin {
		return ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job database.Job
		if err := tx.First(&job, jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("query job: %w", err)
		}

		var tags []database.Tag
		if len(tagIDs) > 0 {
			if err := tx.Find(&tags, tagIDs).Error; err != nil {
				return fmt.Errorf("query tags: %w", err)
			}
			if len(tags) != len(tagIDs) {
				return ErrNotFound
			}
		}

		if err := tx.Model(&job).Association("Tags").Replace(tags); err != nil {
			return fmt.Errorf("replace tags: %w", err)
		}
		return nil
	})
}

// CountAll 统计职位数量，用于后台概览。
func (s *Service) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Job{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

func (s *Service) replaceOwned(ctx context.Context, actor database.User, jobID uint, apply func(tx *gorm.DB) error) error {
	if actor.Role != database.RoleAdmin {
		return ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job database.Job
		if err := tx.First(&job, jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("query job: %w", err)
		}
		return apply(tx)
	})
}

func containsPattern(term string) string {
	return "%" + strings.ToLower(term) + "%"
}

func titleFirstWord(title string) string {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
