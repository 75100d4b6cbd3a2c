package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示一对新人的账号信息。
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool   `gorm:"default:false"`
	Site               *Site  `gorm:"constraint:OnDelete:CASCADE"`
}

// Site 保存婚礼站点的全部字段值（包括版式键），以 JSONB 存储。
// 每个账号只有一个站点。
type Site struct {
	gorm.Model
	UserID       uint           `gorm:"uniqueIndex"`
	Slug         string         `gorm:"index;size:64"`
	Fields       datatypes.JSON `gorm:"type:jsonb"`
	Revision     int64          `gorm:"default:0"`
	PublishedKey string         `gorm:"size:512"`
	PreviewKey   string         `gorm:"size:512"`
	Status       string         `gorm:"size:32"`
	PublishedAt  *time.Time
}

// Site status values.
const (
	SiteDraft      = "draft"
	SitePublishing = "publishing"
	SitePublished  = "published"
	SiteFailed     = "failed"
)

// Asset 记录用户上传到对象存储的图片。
type Asset struct {
	gorm.Model
	UserID      uint   `gorm:"index"`
	ObjectKey   string `gorm:"uniqueIndex;size:512"`
	ContentType string `gorm:"size:64"`
	Size        int64
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Site{}, &Asset{})
}
