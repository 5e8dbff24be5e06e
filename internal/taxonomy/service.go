package taxonomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jobsdb/internal/database"
)

var (
	ErrUnknownKind   = errors.New("unknown reference data kind")
	ErrDuplicateName = errors.New("name already exists for this kind")
	ErrNotFound      = errors.New("reference data entry not found")
	ErrUnauthorized  = errors.New("admin role required")
)

// Kind 标识一类纯字典数据。技能与语言归属职位，走 jobs 服务维护。
type Kind string

const (
	KindTag      Kind = "tags"
	KindCountry  Kind = "countries"
	KindIndustry Kind = "industries"
)

// ParseKind 把路径参数转成 Kind。
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindTag, KindCountry, KindIndustry:
		return Kind(raw), nil
	}
	return "", ErrUnknownKind
}

// Item 是字典条目的统一视图：Detail 对国家是代码、对行业是描述，标签为空。
type Item struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service 维护字典数据与通知模板，除查询外均要求管理员角色。
type Service struct {
	db *gorm.DB
}

// NewService 构造字典服务。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// List 返回指定类型的全部条目。
func (s *Service) List(ctx context.Context, kind Kind) ([]Item, error) {
	switch kind {
	case KindTag:
		var rows []database.Tag
		if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		items := make([]Item, 0, len(rows))
		for _, r := range rows {
			items = append(items, Item{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt})
		}
		return items, nil
	case KindCountry:
		var rows []database.Country
		if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list countries: %w", err)
		}
		items := make([]Item, 0, len(rows))
		for _, r := range rows {
			items = append(items, Item{ID: r.ID, Name: r.Name, Detail: r.Code, CreatedAt: r.CreatedAt})
		}
		return items, nil
	case KindIndustry:
		var rows []database.Industry
		if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list industries: %w", err)
		}
		items := make([]Item, 0, len(rows))
		for _, r := range rows {
			items = append(items, Item{ID: r.ID, Name: r.Name, Detail: r.Description, CreatedAt: r.CreatedAt})
		}
		return items, nil
	}
	return nil, ErrUnknownKind
}

// Create 新增字典条目，name 在类型内唯一。
func (s *Service) Create(ctx context.Context, actor database.User, kind Kind, name, detail string) (Item, error) {
	if actor.Role != database.RoleAdmin {
		return Item{}, ErrUnauthorized
	}

	model, err := newModel(kind, name, detail)
	if err != nil {
		return Item{}, err
	}

	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Item{}, ErrDuplicateName
		}
		return Item{}, fmt.Errorf("create %s entry: %w", kind, err)
	}
	return toItem(model), nil
}

// Update 重命名/修改字典条目。
func (s *Service) Update(ctx context.Context, actor database.User, kind Kind, id uint, name, detail string) (Item, error) {
	if actor.Role != database.RoleAdmin {
		return Item{}, ErrUnauthorized
	}

	model, err := emptyModel(kind)
	if err != nil {
		return Item{}, err
	}

	if err := s.db.WithContext(ctx).First(model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("query %s entry: %w", kind, err)
	}

	updates := updatesFor(kind, name, detail)
	if err := s.db.WithContext(ctx).Model(model).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Item{}, ErrDuplicateName
		}
		return Item{}, fmt.Errorf("update %s entry: %w", kind, err)
	}

	if err := s.db.WithContext(ctx).First(model, id).Error; err != nil {
		return Item{}, fmt.Errorf("reload %s entry: %w", kind, err)
	}
	return toItem(model), nil
}

// Delete 删除字典条目；标签会先解除与职位的关联。
func (s *Service) Delete(ctx context.Context, actor database.User, kind Kind, id uint) error {
	if actor.Role != database.RoleAdmin {
		return ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := emptyModel(kind)
		if err != nil {
			return err
		}
		if err := tx.First(model, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("query %s entry: %w", kind, err)
		}

		if tag, ok := model.(*database.Tag); ok {
			if err := tx.Exec("DELETE FROM job_tags WHERE tag_id = ?", tag.ID).Error; err != nil {
				return fmt.Errorf("detach tag: %w", err)
			}
		}

		if err := tx.Delete(model).Error; err != nil {
			return fmt.Errorf("delete %s entry: %w", kind, err)
		}
		return nil
	})
}

// UpsertTemplate 创建或覆盖通知模板。
func (s *Service) UpsertTemplate(ctx context.Context, actor database.User, name, subject, body string, placeholders []string) (database.NotificationTemplate, error) {
	if actor.Role != database.RoleAdmin {
		return database.NotificationTemplate{}, ErrUnauthorized
	}

	raw, err := placeholdersJSON(placeholders)
	if err != nil {
		return database.NotificationTemplate{}, err
	}

	tpl := database.NotificationTemplate{
		Name:         name,
		Subject:      subject,
		Body:         body,
		Placeholders: raw,
	}
	err = s.db.WithContext(ctx).Create(&tpl).Error
	if err == nil {
		return tpl, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return database.NotificationTemplate{}, fmt.Errorf("create template: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&database.NotificationTemplate{}).
		Where("name = ?", name).
		Updates(map[string]any{"subject": subject, "body": body, "placeholders": raw}).Error; err != nil {
		return database.NotificationTemplate{}, fmt.Errorf("update template: %w", err)
	}
	return s.TemplateByName(ctx, name)
}

// TemplateByName 按名称查找通知模板，worker 渲染通知时使用。
func (s *Service) TemplateByName(ctx context.Context, name string) (database.NotificationTemplate, error) {
	var tpl database.NotificationTemplate
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&tpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.NotificationTemplate{}, ErrNotFound
		}
		return database.NotificationTemplate{}, fmt.Errorf("query template: %w", err)
	}
	return tpl, nil
}

// ListTemplates 返回全部通知模板。
func (s *Service) ListTemplates(ctx context.Context, actor database.User) ([]database.NotificationTemplate, error) {
	if actor.Role != database.RoleAdmin {
		return nil, ErrUnauthorized
	}
	var tpls []database.NotificationTemplate
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&tpls).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return tpls, nil
}

// DeleteTemplate 删除通知模板。
func (s *Service) DeleteTemplate(ctx context.Context, actor database.User, name string) error {
	if actor.Role != database.RoleAdmin {
		return ErrUnauthorized
	}
	result := s.db.WithContext(ctx).Where("name = ?", name).Delete(&database.NotificationTemplate{})
	if result.Error != nil {
		return fmt.Errorf("delete template: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func newModel(kind Kind, name, detail string) (any, error) {
	switch kind {
	case KindTag:
		return &database.Tag{Name: name}, nil
	case KindCountry:
		return &database.Country{Name: name, Code: detail}, nil
	case KindIndustry:
		return &database.Industry{Name: name, Description: detail}, nil
	}
	return nil, ErrUnknownKind
}

func emptyModel(kind Kind) (any, error) {
	switch kind {
	case KindTag:
		return &database.Tag{}, nil
	case KindCountry:
		return &database.Country{}, nil
	case KindIndustry:
		return &database.Industry{}, nil
	}
	return nil, ErrUnknownKind
}

func updatesFor(kind Kind, name, detail string) map[string]any {
	updates := map[string]any{"name": name}
	switch kind {
	case KindCountry:
		updates["code"] = detail
	case KindIndustry:
		updates["description"] = detail
	}
	return updates
}

func toItem(model any) Item {
	switch m := model.(type) {
	case *database.Tag:
		return Item{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt}
	case *database.Country:
		return Item{ID: m.ID, Name: m.Name, Detail: m.Code, CreatedAt: m.CreatedAt}
	case *database.Industry:
		return Item{ID: m.ID, Name: m.Name, Detail: m.Description, CreatedAt: m.CreatedAt}
	}
	return Item{}
}

func placeholdersJSON(placeholders []string) (datatypes.JSON, error) {
	if placeholders == nil {
		placeholders = []string{}
	}
	raw, err := json.Marshal(placeholders)
	if err != nil {
		return nil, fmt.Errorf("encode placeholders: %w", err)
	}
	return datatypes.JSON(raw), nil
}
