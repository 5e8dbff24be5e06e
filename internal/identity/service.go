package identity

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"jobsdb/internal/auth"
	"jobsdb/internal/database"
)

// 身份域的可恢复错误，由调用方映射为用户可见的提示。
var (
	ErrDuplicateIdentity    = errors.New("username or email already registered")
	ErrInvalidCredential    = errors.New("invalid email or password")
	ErrWrongCurrentPassword = errors.New("current password does not match")
	ErrNotFound             = errors.New("user not found")
	ErrUnauthorized         = errors.New("admin role required")
	ErrInvalidRole          = errors.New("unrecognized role")
)

// Service 管理账号与口令凭证。所有不变量（唯一性、角色检查）
// 都在这里强制执行，调用方无法绕过。
type Service struct {
	db *gorm.DB
}

// NewService 构造身份服务。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Register 创建新账号，口令只保存 bcrypt 哈希。
// 用户名与邮箱均按大小写敏感匹配去重，冲突返回 ErrDuplicateIdentity。
func (s *Service) Register(ctx context.Context, username, email, rawPassword string) (database.User, error) {
	hashed, err := auth.HashPassword(rawPassword)
	if err != nil {
		return database.User{}, fmt.Errorf("register: %w", err)
	}

	user := database.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		Role:         database.RoleUser,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return database.User{}, ErrDuplicateIdentity
		}
		return database.User{}, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Authenticate 按邮箱查找账号并比对口令哈希。
// 账号不存在与口令不匹配返回同一个错误，避免枚举注册邮箱。
func (s *Service) Authenticate(ctx context.Context, email, rawPassword string) (database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.User{}, ErrInvalidCredential
		}
		return database.User{}, fmt.Errorf("query user: %w", err)
	}

	if !auth.CheckPasswordHash(rawPassword, user.PasswordHash) {
		return database.User{}, ErrInvalidCredential
	}

	return user, nil
}

// Get 返回指定账号。
func (s *Service) Get(ctx context.Context, userID uint) (database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.User{}, ErrNotFound
		}
		return database.User{}, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ChangePassword 校验当前口令后更新为新口令，并清除强制改密标记。
func (s *Service) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	if !auth.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return ErrWrongCurrentPassword
	}

	hashed, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}

// SetRole 调整账号角色，仅管理员可执行。
func (s *Service) SetRole(ctx context.Context, actor database.User, userID uint, role database.Role) error {
	if actor.Role != database.RoleAdmin {
		return ErrUnauthorized
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	result := s.db.WithContext(ctx).Model(&database.User{}).
		Where("id = ?", userID).
		Update("role", role)
	if result.Error != nil {
		return fmt.Errorf("update role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除账号，级联清理简历与投递记录。仅管理员可执行。
// 删除是软删除：原用户名与邮箱仍占用唯一索引，之后用相同凭证
// 重新注册会得到 ErrDuplicateIdentity。
func (s *Service) Delete(ctx context.Context, actor database.User, userID uint) error {
	if actor.Role != database.RoleAdmin {
		return ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&database.Application{}).Error; err != nil {
			return fmt.Errorf("delete applications: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&database.Resume{}).Error; err != nil {
			return fmt.Errorf("delete resume: %w", err)
		}
		result := tx.Delete(&database.User{}, userID)
		if result.Error != nil {
			return fmt.Errorf("delete user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CountUsers 统计普通用户数量，用于后台概览。
func (s *Service) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&database.User{}).
		Where("role = ?", database.RoleUser).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
