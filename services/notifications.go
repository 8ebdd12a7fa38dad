package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

const fanOutBatchSize = 500

// NotificationService stores notifications and fans them out to user inboxes.
type NotificationService struct {
	db     *gorm.DB
	authz  *Authorizer
	events *Dispatcher
	now    func() time.Time
}

// NotificationInput is an administrator-authored notification.
type NotificationInput struct {
	Type     string
	Message  map[string]interface{}
	Audience string
	RoleIDs  []uint
	UserIDs  []uint
}

type audienceFilter struct {
	RoleIDs []uint `json:"role_ids,omitempty"`
	UserIDs []uint `json:"user_ids,omitempty"`
}

// Create stores a notification; delivery to inboxes happens asynchronously.
func (s *NotificationService) Create(ctx context.Context, actor *models.User, in NotificationInput) (*models.Notification, error) {
	if err := s.authz.Require(ctx, actor, PermCreateNotifications); err != nil {
		return nil, err
	}
	filter := audienceFilter{}
	switch in.Audience {
	case models.AudienceAllUsers:
	case models.AudienceRoles:
		filter.RoleIDs = utils.UniqueUint(in.RoleIDs)
		if len(filter.RoleIDs) == 0 {
			return nil, Validation("invalid audience", map[string]string{"role_ids": "is required for the roles audience"})
		}
	case models.AudienceUsers:
		filter.UserIDs = utils.UniqueUint(in.UserIDs)
		if len(filter.UserIDs) == 0 {
			return nil, Validation("invalid audience", map[string]string{"user_ids": "is required for the users audience"})
		}
	default:
		return nil, Validation("invalid audience", map[string]string{"audience": "must be all_users, roles or users"})
	}
	n, err := s.store(ctx, in.Type, in.Message, in.Audience, filter, uintPtr(actor.ID), nil)
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventNotificationCreated, SubjectID: n.ID, ActorID: actor.ID})
	return n, nil
}

func (s *NotificationService) store(ctx context.Context, typ string, msg map[string]interface{}, audience string, filter audienceFilter, createdBy *uint, dedupe *string) (*models.Notification, error) {
	if typ == "" {
		return nil, Validation("invalid notification", map[string]string{"type": "is required"})
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return nil, Validation("invalid notification", map[string]string{"message": "must be a JSON object"})
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, Internal(err)
	}
	n := models.Notification{
		Type:           typ,
		Message:        datatypes.JSON(msgJSON),
		Audience:       audience,
		AudienceFilter: datatypes.JSON(filterJSON),
		CreatedBy:      createdBy,
		DedupeKey:      dedupe,
	}
	q := s.db.WithContext(ctx)
	if dedupe != nil {
		q = q.Clauses(clause.OnConflict{DoNothing: true})
	}
	if err := q.Create(&n).Error; err != nil {
		return nil, Internal(err)
	}
	if n.ID == 0 && dedupe != nil {
		if err := s.db.WithContext(ctx).Where("dedupe_key = ?", *dedupe).First(&n).Error; err != nil {
			return nil, Internal(err)
		}
	}
	return &n, nil
}

// FanOut is the listener for notification.created. Redelivery is safe: existing inbox rows are kept.
func (s *NotificationService) FanOut(ctx context.Context, e Event) error {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, e.SubjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.distribute(ctx, &n)
}

func (s *NotificationService) recipients(ctx context.Context, n *models.Notification) ([]uint, error) {
	var filter audienceFilter
	if len(n.AudienceFilter) > 0 {
		if err := json.Unmarshal(n.AudienceFilter, &filter); err != nil {
			return nil, err
		}
	}
	var ids []uint
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("status = ?", models.UserStatusActive)
	switch n.Audience {
	case models.AudienceAllUsers:
	case models.AudienceRoles:
		q = q.Where("id IN (?)", s.db.Table("user_roles").Select("user_id").Where("role_id IN ?", filter.RoleIDs))
	case models.AudienceUsers:
		q = q.Where("id IN ?", filter.UserIDs)
	default:
		return nil, fmt.Errorf("unknown audience %q", n.Audience)
	}
	if err := q.Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *NotificationService) distribute(ctx context.Context, n *models.Notification) error {
	ids, err := s.recipients(ctx, n)
	if err != nil {
		return err
	}
	rows := make([]models.UserNotification, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.UserNotification{NotificationID: n.ID, UserID: id})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, fanOutBatchSize).Error; err != nil {
				return err
			}
		}
		var count int64
		if err := tx.Model(&models.UserNotification{}).Where("notification_id = ?", n.ID).Count(&count).Error; err != nil {
			return err
		}
		return tx.Model(n).Updates(map[string]interface{}{
			"distributed_at":  s.now(),
			"recipient_count": count,
		}).Error
	})
}

// NotifyArticleAuthor tells an article's creator about moderation outcomes and new comments.
func (s *NotificationService) NotifyArticleAuthor(ctx context.Context, e Event) error {
	var (
		articleID uint
		msg       = map[string]interface{}{}
	)
	switch e.Name {
	case EventCommentCreated:
		var c models.Comment
		if err := s.db.WithContext(ctx).First(&c, e.SubjectID).Error; err != nil {
			return ignoreMissing(err)
		}
		articleID = c.ArticleID
		msg["comment_id"] = c.ID
		msg["comment_status"] = c.Status
	default:
		articleID = e.SubjectID
		for k, v := range e.Payload {
			msg[k] = v
		}
	}
	var a models.Article
	if err := s.db.WithContext(ctx).First(&a, articleID).Error; err != nil {
		return ignoreMissing(err)
	}
	if a.CreatedBy == nil || *a.CreatedBy == e.ActorID {
		return nil
	}
	msg["article_id"] = a.ID
	msg["title"] = a.Title
	msg["slug"] = a.Slug

	key := fmt.Sprintf("%s:%d:%d", e.Name, e.SubjectID, e.OccurredAt.UnixNano())
	n, err := s.store(ctx, e.Name, msg, models.AudienceUsers, audienceFilter{UserIDs: []uint{*a.CreatedBy}}, nil, &key)
	if err != nil {
		return err
	}
	return s.distribute(ctx, n)
}

func ignoreMissing(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// Inbox lists the user's notifications, newest first.
func (s *NotificationService) Inbox(ctx context.Context, user *models.User, unreadOnly bool, p Page) ([]models.UserNotification, int64, error) {
	p = p.Normalize(20)
	q := s.db.WithContext(ctx).Model(&models.UserNotification{}).Where("user_id = ?", user.ID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var items []models.UserNotification
	if err := q.Preload("Notification").Order("created_at DESC").Order("id DESC").
		Offset(p.Offset()).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

// UnreadCount returns how many inbox rows are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, user *models.User) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.UserNotification{}).
		Where("user_id = ? AND is_read = ?", user.ID, false).Count(&n).Error
	return n, Internal(err)
}

// MarkRead marks one of the user's inbox rows read.
func (s *NotificationService) MarkRead(ctx context.Context, user *models.User, id uint) error {
	var row models.UserNotification
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, user.ID).First(&row).Error; err != nil {
		return notFoundOr(err, "notification not found")
	}
	if row.IsRead {
		return nil
	}
	return Internal(s.db.WithContext(ctx).Model(&row).Updates(map[string]interface{}{"is_read": true, "read_at": s.now()}).Error)
}

// MarkAllRead marks every unread row of the user read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, user *models.User) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.UserNotification{}).
		Where("user_id = ? AND is_read = ?", user.ID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": s.now()})
	return res.RowsAffected, Internal(res.Error)
}

// List is the administrator view of every notification.
func (s *NotificationService) List(ctx context.Context, actor *models.User, p Page) ([]models.Notification, int64, error) {
	if err := s.authz.Require(ctx, actor, PermViewNotifications); err != nil {
		return nil, 0, err
	}
	p = p.Normalize(20)
	q := s.db.WithContext(ctx).Model(&models.Notification{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var items []models.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Offset(p.Offset()).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

// Delete removes a notification and its inbox rows.
func (s *NotificationService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if err := s.authz.Require(ctx, actor, PermDeleteNotifications); err != nil {
		return err
	}
	return Internal(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n models.Notification
		if err := tx.First(&n, id).Error; err != nil {
			return notFoundOr(err, "notification not found")
		}
		if err := tx.Where("notification_id = ?", id).Delete(&models.UserNotification{}).Error; err != nil {
			return err
		}
		return tx.Delete(&n).Error
	}))
}
