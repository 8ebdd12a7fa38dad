package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

const (
	repliesPreviewLimit = 3
	repliesPageSize     = 20
	maxCommentLength    = 5000
)

// CommentService implements threaded comments and their moderation.
type CommentService struct {
	db     *gorm.DB
	authz  *Authorizer
	events *Dispatcher
	now    func() time.Time
}

// CommentInput is a new comment or reply.
type CommentInput struct {
	Content  string
	ParentID *uint
}

func cleanComment(content string) (string, error) {
	c := utils.StripTags(content)
	if c == "" {
		return "", Validation("invalid comment", map[string]string{"content": "is required"})
	}
	if len([]rune(c)) > maxCommentLength {
		return "", Validation("invalid comment", map[string]string{"content": "is too long"})
	}
	return c, nil
}

func (s *CommentService) publishedArticle(ctx context.Context, slug string) (*models.Article, error) {
	var a models.Article
	err := s.db.WithContext(ctx).Where("slug = ? AND status = ?", slug, models.ArticlePublished).First(&a).Error
	if err != nil {
		return nil, notFoundOr(err, "article not found")
	}
	return &a, nil
}

// Create adds a comment to a published article. Replies must target a top-level
// comment of the same article. Moderators' comments skip the pending queue.
func (s *CommentService) Create(ctx context.Context, actor *models.User, articleSlug string, in CommentInput) (*models.Comment, error) {
	if err := s.authz.Require(ctx, actor, PermCreateComments); err != nil {
		return nil, err
	}
	content, err := cleanComment(in.Content)
	if err != nil {
		return nil, err
	}
	article, err := s.publishedArticle(ctx, articleSlug)
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		var parent models.Comment
		if err := s.db.WithContext(ctx).Where("deleted_at IS NULL").First(&parent, *in.ParentID).Error; err != nil {
			return nil, notFoundOr(err, "parent comment not found")
		}
		if parent.ArticleID != article.ID {
			return nil, Conflict("parent comment belongs to a different article")
		}
		if parent.ParentCommentID != nil {
			return nil, Conflict("replies cannot be nested more than one level")
		}
	}

	c := models.Comment{
		ArticleID:       article.ID,
		UserID:          uintPtr(actor.ID),
		ParentCommentID: in.ParentID,
		Content:         content,
		Status:          models.CommentPending,
	}
	if s.authz.CanAny(ctx, actor, PermApproveComments, PermModerateComments) {
		c.Status = models.CommentApproved
		c.ApprovedBy = uintPtr(actor.ID)
		c.ApprovedAt = timePtr(s.now())
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, Internal(err)
	}
	s.events.Dispatch(Event{
		Name:      EventCommentCreated,
		SubjectID: c.ID,
		ActorID:   actor.ID,
		Payload:   map[string]interface{}{"article_id": article.ID, "status": c.Status},
	})
	return s.get(ctx, c.ID)
}

// Update edits the text of the actor's own comment. Moderators may edit any comment.
func (s *CommentService) Update(ctx context.Context, actor *models.User, id uint, content string) (*models.Comment, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanOnOwnOrAll(ctx, actor, PermModerateComments, PermEditComments, c.OwnerID()) {
		return nil, Forbidden("you cannot edit this comment")
	}
	clean, err := cleanComment(content)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(c).Update("content", clean).Error; err != nil {
		return nil, Internal(err)
	}
	return s.get(ctx, id)
}

// Delete soft-deletes a comment in any status, recording who removed it and why.
func (s *CommentService) Delete(ctx context.Context, actor *models.User, id uint, reason string) error {
	c, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !s.authz.CanOnOwnOrAll(ctx, actor, PermDeleteOthersComments, PermDeleteComments, c.OwnerID()) {
		return Forbidden("you cannot delete this comment")
	}
	res := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"deleted_by":     actor.ID,
			"deleted_at":     s.now(),
			"deleted_reason": truncate(utils.StripTags(reason), 255),
		})
	if res.Error != nil {
		return Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFound("comment not found")
	}
	s.events.Dispatch(Event{Name: EventCommentDeleted, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"article_id": c.ArticleID}})
	return nil
}

// Moderate moves a comment to approved, rejected or spam.
func (s *CommentService) Moderate(ctx context.Context, actor *models.User, id uint, status models.CommentStatus) (*models.Comment, error) {
	if !s.authz.CanAny(ctx, actor, PermApproveComments, PermModerateComments) {
		return nil, Forbidden("you cannot moderate comments")
	}
	switch status {
	case models.CommentApproved, models.CommentRejected, models.CommentSpam:
	default:
		return nil, Validation("invalid status", map[string]string{"status": "must be approved, rejected or spam"})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Comment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("deleted_at IS NULL").First(&c, id).Error; err != nil {
			return notFoundOr(err, "comment not found")
		}
		if c.Status == status {
			return Conflict("comment is already " + string(status))
		}
		updates := map[string]interface{}{"status": status, "approved_by": nil, "approved_at": nil}
		if status == models.CommentApproved {
			updates["approved_by"] = actor.ID
			updates["approved_at"] = s.now()
		}
		return tx.Model(&c).Updates(updates).Error
	})
	if err != nil {
		return nil, Internal(err)
	}
	s.events.Dispatch(Event{Name: EventCommentModerated, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"status": status}})
	return s.get(ctx, id)
}

// Report flags a visible comment for moderators.
func (s *CommentService) Report(ctx context.Context, actor *models.User, id uint) (*models.Comment, error) {
	if err := s.authz.Require(ctx, actor, PermReportComments); err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL", id, models.CommentApproved).
		Updates(map[string]interface{}{
			"report_count":     gorm.Expr("report_count + ?", 1),
			"last_reported_at": s.now(),
		})
	if res.Error != nil {
		return nil, Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, NotFound("comment not found")
	}
	s.events.Dispatch(Event{Name: EventCommentReported, SubjectID: id, ActorID: actor.ID})
	return s.get(ctx, id)
}

func (s *CommentService) get(ctx context.Context, id uint) (*models.Comment, error) {
	var c models.Comment
	if err := s.db.WithContext(ctx).Preload("User", publicProfile).Where("deleted_at IS NULL").First(&c, id).Error; err != nil {
		return nil, notFoundOr(err, "comment not found")
	}
	return &c, nil
}

func visibleComments(q *gorm.DB) *gorm.DB {
	return q.Where("status = ? AND deleted_at IS NULL", models.CommentApproved)
}

// ListForArticle pages through approved top-level comments of a published article,
// each carrying its first replies and the total reply count.
func (s *CommentService) ListForArticle(ctx context.Context, articleSlug string, p Page) ([]models.Comment, int64, error) {
	article, err := s.publishedArticle(ctx, articleSlug)
	if err != nil {
		return nil, 0, err
	}
	p = p.Normalize(defaultPageSize)
	q := visibleComments(s.db.WithContext(ctx).Model(&models.Comment{})).
		Where("article_id = ? AND parent_comment_id IS NULL", article.ID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var items []models.Comment
	if err := q.Preload("User", publicProfile).Order("created_at DESC").Order("id DESC").
		Offset(p.Offset()).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, 0, Internal(err)
	}
	if len(items) == 0 {
		return items, total, nil
	}

	ids := make([]uint, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	type replyCount struct {
		ParentCommentID uint
		N               int64
	}
	var counts []replyCount
	if err := visibleComments(s.db.WithContext(ctx).Model(&models.Comment{})).
		Select("parent_comment_id, COUNT(*) AS n").
		Where("parent_comment_id IN ?", ids).
		Group("parent_comment_id").
		Scan(&counts).Error; err != nil {
		return nil, 0, Internal(err)
	}
	byParent := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byParent[c.ParentCommentID] = c.N
	}
	for i := range items {
		items[i].RepliesCount = byParent[items[i].ID]
		if items[i].RepliesCount == 0 {
			continue
		}
		if err := visibleComments(s.db.WithContext(ctx)).Preload("User", publicProfile).
			Where("parent_comment_id = ?", items[i].ID).
			Order("created_at ASC").Order("id ASC").
			Limit(repliesPreviewLimit).
			Find(&items[i].Replies).Error; err != nil {
			return nil, 0, Internal(err)
		}
	}
	return items, total, nil
}

// ListReplies pages through the approved replies of a top-level comment.
func (s *CommentService) ListReplies(ctx context.Context, commentID uint, p Page) ([]models.Comment, int64, error) {
	var parent models.Comment
	if err := visibleComments(s.db.WithContext(ctx)).First(&parent, commentID).Error; err != nil {
		return nil, 0, notFoundOr(err, "comment not found")
	}
	p = p.Normalize(repliesPageSize)
	q := visibleComments(s.db.WithContext(ctx).Model(&models.Comment{})).Where("parent_comment_id = ?", commentID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var items []models.Comment
	if err := q.Preload("User", publicProfile).Order("created_at ASC").Order("id ASC").
		Offset(p.Offset()).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

// ModerationFilter narrows the moderation queue.
type ModerationFilter struct {
	Status   string
	Reported bool
}

// ListForModeration is the moderator view across all articles, oldest pending first.
func (s *CommentService) ListForModeration(ctx context.Context, actor *models.User, f ModerationFilter, p Page) ([]models.Comment, int64, error) {
	if !s.authz.CanAny(ctx, actor, PermApproveComments, PermModerateComments, PermViewReports) {
		return nil, 0, Forbidden("you cannot view the moderation queue")
	}
	p = p.Normalize(20)
	q := s.db.WithContext(ctx).Model(&models.Comment{})
	if strings.EqualFold(f.Status, "deleted") {
		q = q.Where("deleted_at IS NOT NULL")
	} else {
		q = q.Where("deleted_at IS NULL")
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
	}
	if f.Reported {
		q = q.Where("report_count > 0")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var items []models.Comment
	order := "created_at ASC"
	if f.Reported {
		order = "report_count DESC"
	}
	if err := q.Preload("User").Order(order).Order("id ASC").Offset(p.Offset()).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}
