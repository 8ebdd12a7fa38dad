package models

import (
	"time"

	"gorm.io/datatypes"
)

// MediaType is the coarse kind derived from the MIME type.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
	MediaOther    MediaType = "other"
)

// Media is an uploaded file in the media library.
type Media struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Name       string         `gorm:"size:255;not null" json:"name"`
	FileName   string         `gorm:"size:255;not null" json:"file_name"`
	MimeType   string         `gorm:"size:127" json:"mime_type"`
	Disk       string         `gorm:"size:32;not null;default:'local'" json:"disk"`
	Path       string         `gorm:"size:1024;not null" json:"-"`
	URL        string         `gorm:"size:1024;not null" json:"url"`
	Size       int64          `json:"size"`
	Type       MediaType      `gorm:"size:16;index" json:"type"`
	AltText    string         `gorm:"size:255" json:"alt_text"`
	Caption    string         `gorm:"size:500" json:"caption"`
	Metadata   datatypes.JSON `json:"metadata"`
	UploadedBy *uint          `gorm:"index" json:"uploaded_by"`
	Uploader   *User          `gorm:"foreignKey:UploadedBy" json:"uploader,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// OwnerID returns the uploader id or 0 when unknown.
func (m *Media) OwnerID() uint {
	if m.UploadedBy == nil {
		return 0
	}
	return *m.UploadedBy
}
