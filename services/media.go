package services

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

var documentTypes = []string{
	"application/pdf",
	"text/plain",
	"text/csv",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// MediaService manages the media library and the files behind it.
type MediaService struct {
	db      *gorm.DB
	authz   *Authorizer
	events  *Dispatcher
	storage Storage
	now     func() time.Time
}

// UploadInput is one uploaded file.
type UploadInput struct {
	FileName string
	Name     string
	AltText  string
	Caption  string
	Body     io.Reader
}

// scriptableTypes can carry script and are never accepted, whatever their family.
var scriptableTypes = []string{
	"image/svg+xml",
	"text/html",
	"application/xhtml+xml",
}

func classify(m *mimetype.MIME) (models.MediaType, bool) {
	for _, t := range scriptableTypes {
		if m.Is(t) {
			return models.MediaOther, false
		}
	}
	s := m.String()
	switch {
	case strings.HasPrefix(s, "image/"):
		return models.MediaImage, true
	case strings.HasPrefix(s, "video/"):
		return models.MediaVideo, true
	case strings.HasPrefix(s, "audio/"):
		return models.MediaOther, true
	}
	for _, d := range documentTypes {
		if m.Is(d) {
			return models.MediaDocument, true
		}
	}
	return models.MediaOther, false
}

// Upload sniffs the content type, stores the file under yyyy/mm/dd and records it.
func (s *MediaService) Upload(ctx context.Context, actor *models.User, in UploadInput) (*models.Media, error) {
	if err := s.authz.Require(ctx, actor, PermUploadMedia); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, Internal(err)
	}
	if len(data) == 0 {
		return nil, Validation("empty file", map[string]string{"file": "is empty"})
	}
	mt := mimetype.Detect(data)
	kind, ok := classify(mt)
	if !ok {
		return nil, Validation("unsupported file type", map[string]string{"file": "type " + mt.String() + " is not allowed"})
	}

	meta := map[string]interface{}{}
	if kind == models.MediaImage {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			meta["width"] = cfg.Width
			meta["height"] = cfg.Height
		}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, Internal(err)
	}

	ext := mt.Extension()
	if ext == "" {
		ext = strings.ToLower(path.Ext(in.FileName))
	}
	rel := path.Join(s.now().Format("2006/01/02"), uuid.NewString()+ext)
	size, err := s.storage.Save(ctx, rel, bytes.NewReader(data))
	if err != nil {
		return nil, Internal(err)
	}

	name := utils.StripTags(in.Name)
	if name == "" {
		name = utils.StripTags(strings.TrimSuffix(path.Base(in.FileName), path.Ext(in.FileName)))
	}
	if name == "" {
		name = "untitled"
	}
	m := models.Media{
		Name:       truncate(name, 255),
		FileName:   truncate(path.Base(in.FileName), 255),
		MimeType:   mt.String(),
		Disk:       s.storage.Disk(),
		Path:       rel,
		URL:        s.storage.URL(rel),
		Size:       size,
		Type:       kind,
		AltText:    truncate(utils.StripTags(in.AltText), 255),
		Caption:    truncate(utils.StripTags(in.Caption), 500),
		Metadata:   datatypes.JSON(metaJSON),
		UploadedBy: uintPtr(actor.ID),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if derr := s.storage.Delete(ctx, rel); derr != nil {
			utils.Sugar.Warnw("orphaned upload", "path", rel, "error", derr)
		}
		return nil, Internal(err)
	}
	s.events.Dispatch(Event{Name: EventMediaUploaded, SubjectID: m.ID, ActorID: actor.ID, Payload: map[string]interface{}{"mime_type": m.MimeType, "size": m.Size}})
	return &m, nil
}

// MediaFilter narrows the library listing.
type MediaFilter struct {
	Type       string
	UploadedBy uint
	Search     string
}

// List returns library items, newest first.
func (s *MediaService) List(ctx context.Context, actor *models.User, f MediaFilter, p Page) ([]models.Media, int64, error) {
	if err := s.authz.Require(ctx, actor, PermViewMedia); err != nil {
		return nil, 0, err
	}
	p = p.Normalize(24)
	q := s.db.WithContext(ctx).Model(&models.Media{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.UploadedBy != 0 {
		q = q.Where("uploaded_by = ?", f.UploadedBy)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("name LIKE ? OR file_name LIKE ? OR alt_text LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var items []models.Media
	if err := q.Order("created_at DESC").Order("id DESC").Offset(p.Offset()).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

// Get returns one library item.
func (s *MediaService) Get(ctx context.Context, actor *models.User, id uint) (*models.Media, error) {
	if err := s.authz.Require(ctx, actor, PermViewMedia); err != nil {
		return nil, err
	}
	return s.find(ctx, id)
}

func (s *MediaService) find(ctx context.Context, id uint) (*models.Media, error) {
	var m models.Media
	if err := s.db.WithContext(ctx).Preload("Uploader", publicProfile).First(&m, id).Error; err != nil {
		return nil, notFoundOr(err, "media not found")
	}
	return &m, nil
}

// MediaUpdate edits descriptive fields; nil leaves a field unchanged.
type MediaUpdate struct {
	Name    *string
	AltText *string
	Caption *string
}

// Update edits the metadata of an item the actor may edit.
func (s *MediaService) Update(ctx context.Context, actor *models.User, id uint, in MediaUpdate) (*models.Media, error) {
	m, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanOnOwnOrAll(ctx, actor, PermEditOthersMedia, PermEditMedia, m.OwnerID()) {
		return nil, Forbidden("you cannot edit this media")
	}
	updates := map[string]interface{}{}
	if in.Name != nil {
		n := utils.StripTags(*in.Name)
		if n == "" {
			return nil, Validation("invalid media", map[string]string{"name": "is required"})
		}
		updates["name"] = truncate(n, 255)
	}
	if in.AltText != nil {
		updates["alt_text"] = truncate(utils.StripTags(*in.AltText), 255)
	}
	if in.Caption != nil {
		updates["caption"] = truncate(utils.StripTags(*in.Caption), 500)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(m).Updates(updates).Error; err != nil {
			return nil, Internal(err)
		}
	}
	return s.find(ctx, id)
}

// Delete removes the row and the stored file together; a storage failure rolls the row back.
func (s *MediaService) Delete(ctx context.Context, actor *models.User, id uint) error {
	m, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !s.authz.CanOnOwnOrAll(ctx, actor, PermDeleteOthersMedia, PermDeleteMedia, m.OwnerID()) {
		return Forbidden("you cannot delete this media")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Media{}, m.ID).Error; err != nil {
			return err
		}
		return s.storage.Delete(ctx, m.Path)
	})
	if err != nil {
		return Internal(err)
	}
	s.events.Dispatch(Event{Name: EventMediaDeleted, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"path": m.Path}})
	return nil
}
