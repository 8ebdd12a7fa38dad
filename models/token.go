package models

import (
	"strings"
	"time"
)

// AccessToken records every issued JWT by its id so tokens can be revoked server side.
type AccessToken struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"index;not null" json:"user_id"`
	TokenID    string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Name       string     `gorm:"size:32" json:"name"`
	Abilities  string     `gorm:"size:255" json:"abilities"` // comma separated
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HasAbility reports whether the token was issued with the given ability.
func (t *AccessToken) HasAbility(ability string) bool {
	for _, a := range strings.Split(t.Abilities, ",") {
		if a == ability || a == "*" {
			return true
		}
	}
	return false
}

// Usable reports whether the token is neither revoked nor expired at now.
func (t *AccessToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// PasswordReset holds the hashed single-use token of a pending password reset.
type PasswordReset struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"size:191;uniqueIndex;not null"`
	TokenHash string    `gorm:"size:64;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}
