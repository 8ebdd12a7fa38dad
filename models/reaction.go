package models

import (
	"errors"
	"time"
)

// ErrInvalidReactionActor is returned when a reaction row carries both or neither actor columns.
var ErrInvalidReactionActor = errors.New("reaction must carry exactly one of user_id or ip_address")

// ArticleLike is one like per (article, user) or (article, ip).
type ArticleLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ArticleID uint      `gorm:"not null;uniqueIndex:idx_article_likes_user;uniqueIndex:idx_article_likes_ip" json:"article_id"`
	UserID    *uint     `gorm:"uniqueIndex:idx_article_likes_user" json:"user_id,omitempty"`
	IPAddress *string   `gorm:"size:45;uniqueIndex:idx_article_likes_ip" json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ArticleDislike mirrors ArticleLike.
type ArticleDislike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ArticleID uint      `gorm:"not null;uniqueIndex:idx_article_dislikes_user;uniqueIndex:idx_article_dislikes_ip" json:"article_id"`
	UserID    *uint     `gorm:"uniqueIndex:idx_article_dislikes_user" json:"user_id,omitempty"`
	IPAddress *string   `gorm:"size:45;uniqueIndex:idx_article_dislikes_ip" json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func validActor(userID *uint, ip *string) error {
	hasUser := userID != nil
	hasIP := ip != nil && *ip != ""
	if hasUser == hasIP {
		return ErrInvalidReactionActor
	}
	return nil
}

// Validate enforces the exactly-one-actor invariant before persistence.
func (l *ArticleLike) Validate() error { return validActor(l.UserID, l.IPAddress) }

// Validate enforces the exactly-one-actor invariant before persistence.
func (d *ArticleDislike) Validate() error { return validActor(d.UserID, d.IPAddress) }
