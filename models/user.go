package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// UserStatus gates whether a user may authenticate.
type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusBanned  UserStatus = "banned"
	UserStatusBlocked UserStatus = "blocked"
)

// User represents a CMS account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:120" json:"name"`
	Username     string     `gorm:"size:64;index" json:"username"`
	Email        string     `gorm:"size:191;uniqueIndex;not null" json:"email,omitempty"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Provider     string     `gorm:"size:32" json:"provider,omitempty"`
	ProviderID   string     `gorm:"size:191;index" json:"-"`
	AvatarURL    string     `gorm:"size:512" json:"avatar_url"`
	Bio          string     `gorm:"type:text" json:"bio"`
	Status       UserStatus `gorm:"size:16;not null;default:'active';index" json:"status"`
	BannedAt     *time.Time `json:"banned_at,omitempty"`
	BlockedAt    *time.Time `json:"blocked_at,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Roles        []Role     `gorm:"many2many:user_roles;" json:"roles,omitempty"`
}

// BeforeSave normalises the email and fills the default status.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

// IsActive reports whether the user may open new sessions.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive || u.Status == ""
}

// RoleIDs returns the ids of the loaded roles.
func (u *User) RoleIDs() []uint {
	ids := make([]uint, 0, len(u.Roles))
	for _, r := range u.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

// Follow is the self-referential follower edge between two users.
type Follow struct {
	FollowerID  uint      `gorm:"primaryKey;autoIncrement:false" json:"follower_id"`
	FollowingID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}
