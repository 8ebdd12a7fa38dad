package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification audiences.
const (
	AudienceAllUsers = "all_users"
	AudienceRoles    = "roles"
	AudienceUsers    = "users"
)

// Notification holds a typed message that is fanned out to users.
type Notification struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Type           string         `gorm:"size:64;not null;index" json:"type"`
	Message        datatypes.JSON `json:"message"`
	Audience       string         `gorm:"size:16;not null" json:"audience"`
	AudienceFilter datatypes.JSON `json:"audience_filter,omitempty"`
	CreatedBy      *uint          `json:"created_by"`
	// DedupeKey makes event-driven notifications idempotent under redelivery.
	DedupeKey      *string    `gorm:"size:191;uniqueIndex" json:"-"`
	DistributedAt  *time.Time `json:"distributed_at"`
	RecipientCount int64      `gorm:"not null;default:0" json:"recipient_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UserNotification is the per-user fan-out row.
type UserNotification struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	NotificationID uint          `gorm:"not null;uniqueIndex:idx_user_notifications_pair" json:"notification_id"`
	UserID         uint          `gorm:"not null;uniqueIndex:idx_user_notifications_pair;index" json:"user_id"`
	IsRead         bool          `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt         *time.Time    `json:"read_at"`
	CreatedAt      time.Time     `json:"created_at"`
	Notification   *Notification `gorm:"foreignKey:NotificationID" json:"notification,omitempty"`
}
