package models

import "time"

// CommentStatus is the moderation state of a comment.
type CommentStatus string

const (
	CommentPending  CommentStatus = "pending"
	CommentApproved CommentStatus = "approved"
	CommentRejected CommentStatus = "rejected"
	CommentSpam     CommentStatus = "spam"
)

// Comment represents a reply to an article, optionally nested under a top-level comment.
// Deletion is soft and keeps the row for audit.
type Comment struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	ArticleID       uint          `gorm:"index;not null" json:"article_id"`
	UserID          *uint         `gorm:"index" json:"user_id"`
	ParentCommentID *uint         `gorm:"index" json:"parent_comment_id"`
	Content         string        `gorm:"type:text;not null" json:"content"`
	Status          CommentStatus `gorm:"size:16;not null;default:'pending';index" json:"status"`
	ApprovedBy      *uint         `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	ReportCount     int           `gorm:"not null;default:0" json:"report_count"`
	LastReportedAt  *time.Time    `json:"last_reported_at,omitempty"`
	DeletedBy       *uint         `json:"deleted_by,omitempty"`
	DeletedAt       *time.Time    `gorm:"index" json:"deleted_at,omitempty"`
	DeletedReason   string        `gorm:"size:255" json:"deleted_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	User            *User         `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Replies         []Comment     `gorm:"foreignKey:ParentCommentID" json:"replies,omitempty"`
	RepliesCount    int64         `gorm:"-" json:"replies_count"`
}

// IsOwnedBy reports whether userID wrote the comment.
func (c *Comment) IsOwnedBy(userID uint) bool {
	return c.UserID != nil && *c.UserID == userID
}

// OwnerID returns the author id or 0 when the author was deleted.
func (c *Comment) OwnerID() uint {
	if c.UserID == nil {
		return 0
	}
	return *c.UserID
}
