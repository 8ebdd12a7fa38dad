package models

import "time"

// ArticleStatus is a node of the article lifecycle.
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticleReview    ArticleStatus = "review"
	ArticleScheduled ArticleStatus = "scheduled"
	ArticlePublished ArticleStatus = "published"
	ArticleArchived  ArticleStatus = "archived"
	ArticleTrashed   ArticleStatus = "trashed"
)

// AuthorRole describes how a user contributed to an article.
type AuthorRole string

const (
	AuthorMain        AuthorRole = "main"
	AuthorCoAuthor    AuthorRole = "co_author"
	AuthorContributor AuthorRole = "contributor"
)

// Article is a blog post moving through the moderation lifecycle.
type Article struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Slug           string          `gorm:"size:191;uniqueIndex;not null" json:"slug"`
	Title          string          `gorm:"size:255;not null" json:"title"`
	Subtitle       string          `gorm:"size:255" json:"subtitle"`
	Excerpt        string          `gorm:"type:text" json:"excerpt"`
	Content        string          `gorm:"type:text;not null" json:"content"`
	ContentHTML    string          `gorm:"type:text" json:"content_html"`
	Status         ArticleStatus   `gorm:"size:16;not null;default:'draft';index" json:"status"`
	PublishedAt    *time.Time      `gorm:"index" json:"published_at"`
	CreatedBy      *uint           `gorm:"index" json:"created_by"`
	ApprovedBy     *uint           `json:"approved_by"`
	IsFeatured     bool            `gorm:"not null;default:false;index" json:"is_featured"`
	FeaturedAt     *time.Time      `json:"featured_at"`
	IsPinned       bool            `gorm:"not null;default:false;index" json:"is_pinned"`
	PinnedAt       *time.Time      `json:"pinned_at"`
	ReportCount    int             `gorm:"not null;default:0" json:"report_count"`
	LastReportedAt *time.Time      `json:"last_reported_at,omitempty"`
	ReportReason   string          `gorm:"size:500" json:"report_reason,omitempty"`
	TrashedAt      *time.Time      `json:"trashed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Creator        *User           `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	Approver       *User           `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	Categories     []Category      `gorm:"many2many:article_categories;" json:"categories,omitempty"`
	Tags           []Tag           `gorm:"many2many:article_tags;" json:"tags,omitempty"`
	Authors        []ArticleAuthor `gorm:"foreignKey:ArticleID" json:"authors,omitempty"`
	LikesCount     int64           `gorm:"-" json:"likes_count"`
	DislikesCount  int64           `gorm:"-" json:"dislikes_count"`
}

// IsOwnedBy reports whether userID created the article.
func (a *Article) IsOwnedBy(userID uint) bool {
	return a.CreatedBy != nil && *a.CreatedBy == userID
}

// OwnerID returns the creator id or 0 when the creator was deleted.
func (a *Article) OwnerID() uint {
	if a.CreatedBy == nil {
		return 0
	}
	return *a.CreatedBy
}

// ArticleAuthor is the article ↔ user join carrying the author role.
type ArticleAuthor struct {
	ArticleID uint       `gorm:"primaryKey;autoIncrement:false" json:"article_id"`
	UserID    uint       `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	Role      AuthorRole `gorm:"size:16;not null;default:'main'" json:"role"`
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Category groups articles; slugs are unique.
type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Slug        string    `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	Description string    `gorm:"size:500" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Tag labels articles; slugs are unique.
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Slug      string    `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
