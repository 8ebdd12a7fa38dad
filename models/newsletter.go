package models

import "time"

// NewsletterSubscriber is a double opt-in newsletter subscription.
// The token column stores a SHA-256 digest; the raw token only ever travels by mail.
type NewsletterSubscriber struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Email             string     `gorm:"size:191;uniqueIndex;not null" json:"email"`
	UserID            *uint      `gorm:"index" json:"user_id"`
	IsVerified        bool       `gorm:"not null;default:false;index" json:"is_verified"`
	VerificationToken string     `gorm:"size:64;index" json:"-"`
	TokenPurpose      string     `gorm:"size:16" json:"-"`
	TokenExpiresAt    *time.Time `json:"-"`
	SubscribedAt      *time.Time `json:"subscribed_at"`
	UnsubscribedAt    *time.Time `json:"unsubscribed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Active reports a verified subscription that has not been cancelled.
func (s *NewsletterSubscriber) Active() bool {
	return s.IsVerified && s.UnsubscribedAt == nil
}
