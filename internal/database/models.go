package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role 表示账号的授权级别，只允许闭集内的取值。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid 判断角色是否属于闭集。
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// ApplicationStatus 表示投递记录的审核状态。
// Pending 为初始值，Accepted/Rejected 为终态；取值之外的字符串一律拒绝。
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "Pending"
	StatusReviewed ApplicationStatus = "Reviewed"
	StatusAccepted ApplicationStatus = "Accepted"
	StatusRejected ApplicationStatus = "Rejected"
)

// Valid 判断状态是否属于闭集。
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// User 表示求职者或管理员账号。
type User struct {
	gorm.Model
	Username           string        `gorm:"uniqueIndex;size:64"`
	Email              string        `gorm:"uniqueIndex;size:120"`
	PasswordHash       string        `gorm:"size:255"`
	Role               Role          `gorm:"size:10;default:user"`
	MustChangePassword bool          `gorm:"default:false"`
	Resume             *Resume       `gorm:"constraint:OnDelete:CASCADE"`
	Applications       []Application `gorm:"constraint:OnDelete:CASCADE"`
}

// Resume 表示用户的简历档案，每个用户至多一份（user_id 唯一索引兜底）。
type Resume struct {
	gorm.Model
	UserID        uint   `gorm:"uniqueIndex"`
	Name          string `gorm:"size:64"`
	Gender        string `gorm:"size:10"`
	Age           int
	Education     string `gorm:"size:100"`
	Contact       string `gorm:"size:100"`
	Experience    string `gorm:"type:text"`
	Introduction  string `gorm:"type:text"`
	AttachmentKey string `gorm:"size:512"`
}

// Job 表示管理员发布的职位。
type Job struct {
	gorm.Model
	Title        string        `gorm:"size:100;index"`
	Description  string        `gorm:"type:text"`
	Requirements string        `gorm:"type:text"`
	Location     string        `gorm:"size:100;index"`
	Salary       string        `gorm:"size:50"`
	ContactInfo  string        `gorm:"size:100"`
	PostedBy     uint          `gorm:"index"`
	Poster       User          `gorm:"foreignKey:PostedBy"`
	Skills       []Skill       `gorm:"constraint:OnDelete:CASCADE"`
	Languages    []Language    `gorm:"constraint:OnDelete:CASCADE"`
	Tags         []Tag         `gorm:"many2many:job_tags;constraint:OnDelete:CASCADE"`
	Applications []Application `gorm:"constraint:OnDelete:CASCADE"`
}

// Application 表示一次投递：用户、职位与投递当时的简历快照引用。
// (user_id, job_id) 组合唯一，并发重复投递由该索引兜底。
type Application struct {
	gorm.Model
	UserID   uint              `gorm:"uniqueIndex:idx_app_user_job"`
	JobID    uint              `gorm:"uniqueIndex:idx_app_user_job"`
	ResumeID uint              `gorm:"index"`
	Status   ApplicationStatus `gorm:"size:20;default:Pending"`
	User     User              `gorm:"foreignKey:UserID"`
	Job      Job               `gorm:"foreignKey:JobID"`
	Resume   Resume            `gorm:"foreignKey:ResumeID"`
}

// Skill 表示职位要求的技能，归属单个职位。
type Skill struct {
	gorm.Model
	JobID uint   `gorm:"uniqueIndex:idx_skill_job_name"`
	Name  string `gorm:"size:64;uniqueIndex:idx_skill_job_name"`
}

// Language 表示职位要求的语言，归属单个职位。
type Language struct {
	gorm.Model
	JobID uint   `gorm:"uniqueIndex:idx_lang_job_name"`
	Name  string `gorm:"size:64;uniqueIndex:idx_lang_job_name"`
}

// Tag 表示可挂到任意职位的标签（多对多）。
type Tag struct {
	gorm.Model
	Name string `gorm:"uniqueIndex;size:64"`
}

// Country 表示职位筛选用的国家/地区字典。
type Country struct {
	gorm.Model
	Name string `gorm:"uniqueIndex;size:64"`
	Code string `gorm:"size:8"`
}

// Industry 表示职位筛选用的行业字典。
type Industry struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex;size:64"`
	Description string `gorm:"size:255"`
}

// NotificationTemplate 表示投递状态通知的文案模板。
// 核心流程只把它当作字典数据，真正的发送由 worker 完成。
type NotificationTemplate struct {
	gorm.Model
	Name         string         `gorm:"uniqueIndex;size:64"`
	Subject      string         `gorm:"size:255"`
	Body         string         `gorm:"type:text"`
	Placeholders datatypes.JSON `gorm:"type:jsonb"`
}

// AllModels 返回需要迁移的全部模型，顺序满足外键依赖。
func AllModels() []any {
	return []any{
		&User{},
		&Resume{},
		&Job{},
		&Application{},
		&Skill{},
		&Language{},
		&Tag{},
		&Country{},
		&Industry{},
		&NotificationTemplate{},
	}
}
