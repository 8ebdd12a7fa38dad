package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

const articleCacheTTL = 10 * time.Minute

// ArticleService implements the article lifecycle and its queries.
type ArticleService struct {
	db     *gorm.DB
	authz  *Authorizer
	events *Dispatcher
	cache  utils.Cache
	now    func() time.Time
}

// ArticleInput carries create/update fields. Nil pointers and nil slices leave values unchanged on update.
type ArticleInput struct {
	Title       *string
	Subtitle    *string
	Excerpt     *string
	Content     *string
	Slug        *string
	PublishedAt *time.Time
	// Status may only request draft or review; other states are reached through transitions.
	Status      *models.ArticleStatus
	CategoryIDs []uint
	TagIDs      []uint
	CoAuthorIDs []uint
}

// Create stores a new article owned by actor. A published_at makes it published or scheduled at once.
func (s *ArticleService) Create(ctx context.Context, actor *models.User, in ArticleInput) (*models.Article, error) {
	if err := s.authz.Require(ctx, actor, PermCreatePosts); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		fields["title"] = "is required"
	}
	if in.Content == nil || strings.TrimSpace(*in.Content) == "" {
		fields["content"] = "is required"
	}
	if len(fields) > 0 {
		return nil, Validation("invalid article", fields)
	}

	a := models.Article{
		Title:     utils.StripTags(*in.Title),
		Content:   *in.Content,
		Status:    models.ArticleDraft,
		CreatedBy: uintPtr(actor.ID),
	}
	if in.Subtitle != nil {
		a.Subtitle = utils.StripTags(*in.Subtitle)
	}
	if in.Excerpt != nil {
		a.Excerpt = utils.StripTags(*in.Excerpt)
	}
	if in.Status != nil {
		switch *in.Status {
		case models.ArticleDraft, models.ArticleReview:
			a.Status = *in.Status
		default:
			return nil, Validation("invalid status", map[string]string{"status": "must be draft or review"})
		}
	}
	if in.PublishedAt != nil {
		if !s.authz.Can(ctx, actor, PermPublishPosts) {
			return nil, Forbidden("you do not have permission to publish articles")
		}
		s.publishAt(&a, *in.PublishedAt, actor.ID)
	}
	html, err := utils.RenderMarkdown(a.Content)
	if err != nil {
		return nil, Internal(err)
	}
	a.ContentHTML = html

	base := a.Title
	if in.Slug != nil && strings.TrimSpace(*in.Slug) != "" {
		base = *in.Slug
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := uniqueSlug(tx, &models.Article{}, base, 0)
		if err != nil {
			return err
		}
		a.Slug = slug
		if err := tx.Create(&a).Error; err != nil {
			return err
		}
		if err := setTaxonomy(tx, &a, in.CategoryIDs, in.TagIDs); err != nil {
			return err
		}
		return setAuthors(tx, &a, actor.ID, in.CoAuthorIDs)
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, Validation("slug already in use", map[string]string{"slug": "has already been taken"})
		}
		return nil, Internal(err)
	}

	s.events.Dispatch(Event{Name: EventArticleCreated, SubjectID: a.ID, ActorID: actor.ID, Payload: map[string]interface{}{"status": a.Status}})
	if a.Status == models.ArticlePublished {
		s.events.Dispatch(Event{Name: EventArticlePublished, SubjectID: a.ID, ActorID: actor.ID})
	}
	return s.load(ctx, a.ID)
}

// publishAt derives published or scheduled from t and records the approver.
func (s *ArticleService) publishAt(a *models.Article, t time.Time, approver uint) {
	a.PublishedAt = timePtr(t)
	if t.After(s.now()) {
		a.Status = models.ArticleScheduled
	} else {
		a.Status = models.ArticlePublished
	}
	a.ApprovedBy = uintPtr(approver)
}

// Update edits content and metadata of an article the actor may edit.
func (s *ArticleService) Update(ctx context.Context, actor *models.User, id uint, in ArticleInput) (*models.Article, error) {
	var oldSlug string
	canPublish := in.PublishedAt != nil && s.authz.Can(ctx, actor, PermPublishPosts)
	guard := func(a *models.Article) error {
		if !s.authz.CanOnOwnOrAll(ctx, actor, PermEditOthersPosts, PermEditPosts, a.OwnerID()) {
			return Forbidden("you cannot edit this article")
		}
		if in.PublishedAt != nil && !canPublish {
			return Forbidden("you do not have permission to publish articles")
		}
		return nil
	}
	err := s.mutate(ctx, id, guard, func(tx *gorm.DB, a *models.Article) error {
		if a.Status == models.ArticleTrashed {
			return Conflict("restore the article from trash before editing")
		}
		oldSlug = a.Slug
		updates := map[string]interface{}{}
		if in.Title != nil {
			t := utils.StripTags(*in.Title)
			if t == "" {
				return Validation("invalid article", map[string]string{"title": "is required"})
			}
			updates["title"] = t
		}
		if in.Subtitle != nil {
			updates["subtitle"] = utils.StripTags(*in.Subtitle)
		}
		if in.Excerpt != nil {
			updates["excerpt"] = utils.StripTags(*in.Excerpt)
		}
		if in.Content != nil {
			if strings.TrimSpace(*in.Content) == "" {
				return Validation("invalid article", map[string]string{"content": "is required"})
			}
			html, err := utils.RenderMarkdown(*in.Content)
			if err != nil {
				return err
			}
			updates["content"] = *in.Content
			updates["content_html"] = html
		}
		if in.Slug != nil && strings.TrimSpace(*in.Slug) != "" && slugify(*in.Slug) != a.Slug {
			slug, err := uniqueSlug(tx, &models.Article{}, *in.Slug, a.ID)
			if err != nil {
				return err
			}
			updates["slug"] = slug
		}
		if in.Status != nil && *in.Status != a.Status {
			switch {
			case *in.Status == models.ArticleReview && a.Status == models.ArticleDraft,
				*in.Status == models.ArticleDraft && a.Status == models.ArticleReview:
				updates["status"] = *in.Status
			default:
				return Conflict(fmt.Sprintf("cannot move article from %s to %s", a.Status, *in.Status))
			}
		}
		if in.PublishedAt != nil {
			switch a.Status {
			case models.ArticleArchived:
				updates["published_at"] = *in.PublishedAt
			default:
				next := *a
				s.publishAt(&next, *in.PublishedAt, actor.ID)
				updates["published_at"] = *in.PublishedAt
				updates["status"] = next.Status
				if a.ApprovedBy == nil {
					updates["approved_by"] = actor.ID
				}
			}
		}
		if len(updates) > 0 {
			if err := tx.Model(a).Updates(updates).Error; err != nil {
				return err
			}
		}
		if err := setTaxonomy(tx, a, in.CategoryIDs, in.TagIDs); err != nil {
			return err
		}
		if in.CoAuthorIDs != nil {
			return setAuthors(tx, a, a.OwnerID(), in.CoAuthorIDs)
		}
		return nil
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, Validation("slug already in use", map[string]string{"slug": "has already been taken"})
		}
		return nil, err
	}
	s.invalidate(ctx, oldSlug)
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, a.Slug)
	s.events.Dispatch(Event{Name: EventArticleUpdated, SubjectID: id, ActorID: actor.ID})
	return a, nil
}

// Approve publishes (or schedules) a draft or in-review article.
func (s *ArticleService) Approve(ctx context.Context, actor *models.User, id uint) (*models.Article, error) {
	if err := s.authz.Require(ctx, actor, PermApprovePosts); err != nil {
		return nil, err
	}
	var status models.ArticleStatus
	a, err := s.transition(ctx, id, nil, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		if a.Status != models.ArticleDraft && a.Status != models.ArticleReview {
			return nil, Conflict("only draft or in-review articles can be approved")
		}
		t := s.now()
		if a.PublishedAt != nil {
			t = *a.PublishedAt
		}
		next := *a
		s.publishAt(&next, t, actor.ID)
		status = next.Status
		return map[string]interface{}{"status": next.Status, "published_at": t, "approved_by": actor.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventArticleApproved, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"status": status}})
	if status == models.ArticlePublished {
		s.events.Dispatch(Event{Name: EventArticlePublished, SubjectID: id, ActorID: actor.ID})
	}
	return a, nil
}

// Reject sends a draft or in-review article back to draft.
func (s *ArticleService) Reject(ctx context.Context, actor *models.User, id uint, reason string) (*models.Article, error) {
	if err := s.authz.Require(ctx, actor, PermApprovePosts); err != nil {
		return nil, err
	}
	a, err := s.transition(ctx, id, nil, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		if a.Status != models.ArticleDraft && a.Status != models.ArticleReview {
			return nil, Conflict("only draft or in-review articles can be rejected")
		}
		return map[string]interface{}{"status": models.ArticleDraft, "approved_by": nil}, nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventArticleRejected, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"reason": utils.StripTags(reason)}})
	return a, nil
}

func (s *ArticleService) canArchive(ctx context.Context, actor *models.User, a *models.Article) bool {
	if s.authz.Can(ctx, actor, PermEditOthersPosts) {
		return true
	}
	return actor != nil && a.IsOwnedBy(actor.ID) && s.authz.CanAny(ctx, actor, PermArchivePosts, PermEditPosts)
}

func (s *ArticleService) canTrash(ctx context.Context, actor *models.User, a *models.Article) bool {
	if s.authz.Can(ctx, actor, PermDeleteOthersPosts) {
		return true
	}
	return actor != nil && a.IsOwnedBy(actor.ID) && s.authz.CanAny(ctx, actor, PermDeletePosts, PermTrashPosts)
}

// Archive retires a live or pending article. The approval is kept so restore can republish.
func (s *ArticleService) Archive(ctx context.Context, actor *models.User, id uint) (*models.Article, error) {
	guard := func(a *models.Article) error {
		if !s.canArchive(ctx, actor, a) {
			return Forbidden("you cannot archive this article")
		}
		return nil
	}
	a, err := s.transition(ctx, id, guard, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		switch a.Status {
		case models.ArticlePublished, models.ArticleScheduled, models.ArticleDraft, models.ArticleReview:
		default:
			return nil, Conflict(fmt.Sprintf("cannot archive a %s article", a.Status))
		}
		return map[string]interface{}{"status": models.ArticleArchived}, nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventArticleArchived, SubjectID: id, ActorID: actor.ID})
	return a, nil
}

// Restore brings an archived article back: published (or scheduled) when it was approved.
// An article archived before anyone approved it goes to draft rather than published,
// since a published article must always carry approved_by.
func (s *ArticleService) Restore(ctx context.Context, actor *models.User, id uint) (*models.Article, error) {
	guard := func(a *models.Article) error {
		if !s.canArchive(ctx, actor, a) {
			return Forbidden("you cannot restore this article")
		}
		return nil
	}
	a, err := s.transition(ctx, id, guard, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		if a.Status != models.ArticleArchived {
			return nil, Conflict("only archived articles can be restored")
		}
		if a.ApprovedBy == nil {
			return map[string]interface{}{"status": models.ArticleDraft}, nil
		}
		if a.PublishedAt != nil && a.PublishedAt.After(s.now()) {
			return map[string]interface{}{"status": models.ArticleScheduled}, nil
		}
		t := s.now()
		if a.PublishedAt != nil {
			t = *a.PublishedAt
		}
		return map[string]interface{}{"status": models.ArticlePublished, "published_at": t}, nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventArticleRestored, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"status": a.Status}})
	return a, nil
}

// Trash moves any non-trashed article to the trash.
func (s *ArticleService) Trash(ctx context.Context, actor *models.User, id uint) (*models.Article, error) {
	guard := func(a *models.Article) error {
		if !s.canTrash(ctx, actor, a) {
			return Forbidden("you cannot trash this article")
		}
		return nil
	}
	a, err := s.transition(ctx, id, guard, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		if a.Status == models.ArticleTrashed {
			return nil, Conflict("article is already trashed")
		}
		return map[string]interface{}{"status": models.ArticleTrashed, "trashed_at": s.now()}, nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventArticleTrashed, SubjectID: id, ActorID: actor.ID})
	return a, nil
}

// RestoreFromTrash returns a trashed article to draft and drops its approval.
func (s *ArticleService) RestoreFromTrash(ctx context.Context, actor *models.User, id uint) (*models.Article, error) {
	guard := func(a *models.Article) error {
		if !s.canTrash(ctx, actor, a) {
			return Forbidden("you cannot restore this article")
		}
		return nil
	}
	a, err := s.transition(ctx, id, guard, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		if a.Status != models.ArticleTrashed {
			return nil, Conflict("only trashed articles can be restored from trash")
		}
		return map[string]interface{}{"status": models.ArticleDraft, "approved_by": nil, "trashed_at": nil}, nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventArticleRestored, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"status": a.Status}})
	return a, nil
}

// SetFeatured sets or clears the featured flag.
func (s *ArticleService) SetFeatured(ctx context.Context, actor *models.User, id uint, featured bool) (*models.Article, error) {
	if err := s.authz.Require(ctx, actor, PermFeaturePosts); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, nil, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		if !featured {
			return map[string]interface{}{"is_featured": false, "featured_at": nil}, nil
		}
		return map[string]interface{}{"is_featured": true, "featured_at": s.now()}, nil
	})
}

// SetPinned sets or clears the pinned flag. Other pinned articles are left alone.
func (s *ArticleService) SetPinned(ctx context.Context, actor *models.User, id uint, pinned bool) (*models.Article, error) {
	if err := s.authz.Require(ctx, actor, PermFeaturePosts); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, nil, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		if !pinned {
			return map[string]interface{}{"is_pinned": false, "pinned_at": nil}, nil
		}
		return map[string]interface{}{"is_pinned": true, "pinned_at": s.now()}, nil
	})
}

// Report flags a published article for moderators. Status never changes.
func (s *ArticleService) Report(ctx context.Context, actor *models.User, id uint, reason string) (*models.Article, error) {
	if err := s.authz.Require(ctx, actor, PermReportPosts); err != nil {
		return nil, err
	}
	a, err := s.transition(ctx, id, nil, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		if a.Status != models.ArticlePublished {
			return nil, NotFound("article not found")
		}
		return map[string]interface{}{
			"report_count":     gorm.Expr("report_count + ?", 1),
			"last_reported_at": s.now(),
			"report_reason":    truncate(utils.StripTags(reason), 500),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventArticleReported, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"reason": a.ReportReason}})
	return a, nil
}

// ClearReports resets the report counters.
func (s *ArticleService) ClearReports(ctx context.Context, actor *models.User, id uint) (*models.Article, error) {
	if err := s.authz.Require(ctx, actor, PermClearReports); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, nil, func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error) {
		return map[string]interface{}{"report_count": 0, "last_reported_at": nil, "report_reason": ""}, nil
	})
}

// Delete removes an article and everything hanging off it.
func (s *ArticleService) Delete(ctx context.Context, actor *models.User, id uint) error {
	var slug string
	guard := func(a *models.Article) error {
		if !s.canTrash(ctx, actor, a) {
			return Forbidden("you cannot delete this article")
		}
		return nil
	}
	err := s.mutate(ctx, id, guard, func(tx *gorm.DB, a *models.Article) error {
		slug = a.Slug
		for _, m := range []interface{}{&models.Comment{}, &models.ArticleLike{}, &models.ArticleDislike{}, &models.ArticleAuthor{}} {
			if err := tx.Where("article_id = ?", a.ID).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(a).Association("Categories").Clear(); err != nil {
			return err
		}
		if err := tx.Model(a).Association("Tags").Clear(); err != nil {
			return err
		}
		return tx.Delete(a).Error
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, slug)
	s.events.Dispatch(Event{Name: EventArticleDeleted, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"slug": slug}})
	return nil
}

// PublishDue promotes scheduled articles whose publish time has passed. It returns the promoted ids.
func (s *ArticleService) PublishDue(ctx context.Context) ([]uint, error) {
	var due []models.Article
	if err := s.db.WithContext(ctx).
		Where("status = ? AND published_at <= ?", models.ArticleScheduled, s.now()).
		Order("published_at ASC").Limit(100).Find(&due).Error; err != nil {
		return nil, Internal(err)
	}
	var promoted []uint
	for _, d := range due {
		res := s.db.WithContext(ctx).Model(&models.Article{}).
			Where("id = ? AND status = ?", d.ID, models.ArticleScheduled).
			Update("status", models.ArticlePublished)
		if res.Error != nil {
			return promoted, Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		promoted = append(promoted, d.ID)
		s.invalidate(ctx, d.Slug)
		var approver uint
		if d.ApprovedBy != nil {
			approver = *d.ApprovedBy
		}
		s.events.Dispatch(Event{Name: EventArticlePublished, SubjectID: d.ID, ActorID: approver, Payload: map[string]interface{}{"scheduled": true}})
	}
	return promoted, nil
}

// transition locks the article, applies the updates returned by fn and reloads it.
func (s *ArticleService) transition(ctx context.Context, id uint, guard func(a *models.Article) error, fn func(tx *gorm.DB, a *models.Article) (map[string]interface{}, error)) (*models.Article, error) {
	var slug string
	err := s.mutate(ctx, id, guard, func(tx *gorm.DB, a *models.Article) error {
		slug = a.Slug
		updates, err := fn(tx, a)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(a).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, slug)
	return s.load(ctx, id)
}

// mutate runs guard on a plain read, then fn on the row locked inside a transaction.
// Guards consult the authorizer, which must not run on the transaction's connection.
func (s *ArticleService) mutate(ctx context.Context, id uint, guard func(a *models.Article) error, fn func(tx *gorm.DB, a *models.Article) error) error {
	if guard != nil {
		var pre models.Article
		if err := s.db.WithContext(ctx).First(&pre, id).Error; err != nil {
			return notFoundOr(err, "article not found")
		}
		if err := guard(&pre); err != nil {
			return err
		}
	}
	return Internal(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Article
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, id).Error; err != nil {
			return notFoundOr(err, "article not found")
		}
		return fn(tx, &a)
	}))
}

func (s *ArticleService) load(ctx context.Context, id uint) (*models.Article, error) {
	var a models.Article
	if err := s.preload(s.db.WithContext(ctx)).First(&a, id).Error; err != nil {
		return nil, notFoundOr(err, "article not found")
	}
	if err := s.attachCounts(ctx, []*models.Article{&a}); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *ArticleService) preload(q *gorm.DB) *gorm.DB {
	return q.Preload("Creator", publicProfile).Preload("Categories").Preload("Tags").Preload("Authors.User", publicProfile)
}

func (s *ArticleService) cacheKey(slug string) string {
	return "article:slug:" + slug
}

func (s *ArticleService) invalidate(ctx context.Context, slug string) {
	if slug == "" {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(slug)); err != nil {
		utils.Sugar.Warnf("article cache invalidate failed slug=%s err=%v", slug, err)
	}
}

// GetBySlug returns a published article to anyone, and any other state only to
// its creator or an editor. Everything else is NotFound.
func (s *ArticleService) GetBySlug(ctx context.Context, viewer *models.User, slug string) (*models.Article, error) {
	var a models.Article
	if !utils.CacheGetJSON(ctx, s.cache, s.cacheKey(slug), &a) {
		if err := s.preload(s.db.WithContext(ctx)).Where("slug = ?", slug).First(&a).Error; err != nil {
			return nil, notFoundOr(err, "article not found")
		}
		if a.Status == models.ArticlePublished {
			utils.CacheSetJSON(ctx, s.cache, s.cacheKey(slug), a, articleCacheTTL)
		}
	}
	if a.Status != models.ArticlePublished && !s.canSeeUnpublished(ctx, viewer, &a) {
		return nil, NotFound("article not found")
	}
	if err := s.attachCounts(ctx, []*models.Article{&a}); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID is GetBySlug keyed by id.
func (s *ArticleService) GetByID(ctx context.Context, viewer *models.User, id uint) (*models.Article, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.ArticlePublished && !s.canSeeUnpublished(ctx, viewer, a) {
		return nil, NotFound("article not found")
	}
	return a, nil
}

func (s *ArticleService) canSeeUnpublished(ctx context.Context, viewer *models.User, a *models.Article) bool {
	if viewer == nil {
		return false
	}
	return a.IsOwnedBy(viewer.ID) || s.authz.CanAny(ctx, viewer, PermEditOthersPosts, PermApprovePosts)
}

// ArticleFilter narrows article listings.
type ArticleFilter struct {
	Status   string
	Category string
	Tag      string
	AuthorID uint
	Featured *bool
	Search   string
}

// ListPublished lists published articles, pinned first then newest.
func (s *ArticleService) ListPublished(ctx context.Context, f ArticleFilter, p Page) ([]models.Article, int64, error) {
	f.Status = string(models.ArticlePublished)
	return s.list(ctx, s.db.WithContext(ctx).Model(&models.Article{}), f, p)
}

// ListMine lists articles created by actor in any status.
func (s *ArticleService) ListMine(ctx context.Context, actor *models.User, f ArticleFilter, p Page) ([]models.Article, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Article{}).Where("created_by = ?", actor.ID)
	return s.list(ctx, q, f, p)
}

// ListAll is the editorial view of every article.
func (s *ArticleService) ListAll(ctx context.Context, actor *models.User, f ArticleFilter, p Page) ([]models.Article, int64, error) {
	if !s.authz.CanAny(ctx, actor, PermEditOthersPosts, PermApprovePosts) {
		return nil, 0, Forbidden("you cannot list all articles")
	}
	return s.list(ctx, s.db.WithContext(ctx).Model(&models.Article{}), f, p)
}

// ListReported is the moderation queue of reported articles, most reported first.
func (s *ArticleService) ListReported(ctx context.Context, actor *models.User, p Page) ([]models.Article, int64, error) {
	if err := s.authz.Require(ctx, actor, PermViewReports); err != nil {
		return nil, 0, err
	}
	p = p.Normalize(20)
	q := s.db.WithContext(ctx).Model(&models.Article{}).Where("report_count > 0")
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var items []models.Article
	if err := s.preload(q).Order("report_count DESC").Order("last_reported_at DESC").
		Offset(p.Offset()).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

func (s *ArticleService) list(ctx context.Context, q *gorm.DB, f ArticleFilter, p Page) ([]models.Article, int64, error) {
	p = p.Normalize(defaultPageSize)
	if f.Status != "" {
		q = q.Where("articles.status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("articles.id IN (?)", s.db.Table("article_categories").
			Select("article_categories.article_id").
			Joins("JOIN categories ON categories.id = article_categories.category_id").
			Where("categories.slug = ?", f.Category))
	}
	if f.Tag != "" {
		q = q.Where("articles.id IN (?)", s.db.Table("article_tags").
			Select("article_tags.article_id").
			Joins("JOIN tags ON tags.id = article_tags.tag_id").
			Where("tags.slug = ?", f.Tag))
	}
	if f.AuthorID != 0 {
		q = q.Where("articles.created_by = ? OR articles.id IN (?)", f.AuthorID,
			s.db.Table("article_authors").Select("article_id").Where("user_id = ?", f.AuthorID))
	}
	if f.Featured != nil {
		q = q.Where("articles.is_featured = ?", *f.Featured)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("articles.title LIKE ? OR articles.excerpt LIKE ? OR articles.content LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var items []models.Article
	err := s.preload(q).
		Order("articles.is_pinned DESC").
		Order("articles.pinned_at DESC").
		Order("articles.published_at DESC").
		Order("articles.id DESC").
		Offset(p.Offset()).Limit(p.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, Internal(err)
	}
	ptrs := make([]*models.Article, len(items))
	for i := range items {
		ptrs[i] = &items[i]
	}
	if err := s.attachCounts(ctx, ptrs); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

type countRow struct {
	ArticleID uint
	N         int64
}

func (s *ArticleService) attachCounts(ctx context.Context, items []*models.Article) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uint, len(items))
	for i, a := range items {
		ids[i] = a.ID
	}
	likes, err := s.countBy(ctx, &models.ArticleLike{}, ids)
	if err != nil {
		return err
	}
	dislikes, err := s.countBy(ctx, &models.ArticleDislike{}, ids)
	if err != nil {
		return err
	}
	for _, a := range items {
		a.LikesCount = likes[a.ID]
		a.DislikesCount = dislikes[a.ID]
	}
	return nil
}

func (s *ArticleService) countBy(ctx context.Context, model interface{}, ids []uint) (map[uint]int64, error) {
	var rows []countRow
	if err := s.db.WithContext(ctx).Model(model).
		Select("article_id, COUNT(*) AS n").
		Where("article_id IN ?", ids).
		Group("article_id").
		Scan(&rows).Error; err != nil {
		return nil, Internal(err)
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.ArticleID] = r.N
	}
	return out, nil
}

func setTaxonomy(tx *gorm.DB, a *models.Article, categoryIDs, tagIDs []uint) error {
	if categoryIDs != nil {
		var cats []models.Category
		ids := utils.UniqueUint(categoryIDs)
		if len(ids) > 0 {
			if err := tx.Where("id IN ?", ids).Find(&cats).Error; err != nil {
				return err
			}
			if len(cats) != len(ids) {
				return Validation("unknown category", map[string]string{"category_ids": "contains an unknown category"})
			}
		}
		if err := tx.Model(a).Association("Categories").Replace(cats); err != nil {
			return err
		}
	}
	if tagIDs != nil {
		var tags []models.Tag
		ids := utils.UniqueUint(tagIDs)
		if len(ids) > 0 {
			if err := tx.Where("id IN ?", ids).Find(&tags).Error; err != nil {
				return err
			}
			if len(tags) != len(ids) {
				return Validation("unknown tag", map[string]string{"tag_ids": "contains an unknown tag"})
			}
		}
		if err := tx.Model(a).Association("Tags").Replace(tags); err != nil {
			return err
		}
	}
	return nil
}

func setAuthors(tx *gorm.DB, a *models.Article, mainID uint, coAuthorIDs []uint) error {
	if err := tx.Where("article_id = ?", a.ID).Delete(&models.ArticleAuthor{}).Error; err != nil {
		return err
	}
	rows := []models.ArticleAuthor{}
	if mainID != 0 {
		rows = append(rows, models.ArticleAuthor{ArticleID: a.ID, UserID: mainID, Role: models.AuthorMain})
	}
	for _, id := range utils.UniqueUint(coAuthorIDs) {
		if id == mainID {
			continue
		}
		rows = append(rows, models.ArticleAuthor{ArticleID: a.ID, UserID: id, Role: models.AuthorCoAuthor})
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

// slugify lowercases s and joins runs of letters and digits with '-'.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(truncate(b.String(), 180), "-")
	if out == "" {
		out = "untitled"
	}
	return out
}

// uniqueSlug returns slugify(base), suffixed with -2, -3... until no other row of model uses it.
func uniqueSlug(tx *gorm.DB, model interface{}, base string, exceptID uint) (string, error) {
	root := slugify(base)
	candidate := root
	for i := 2; ; i++ {
		var n int64
		q := tx.Model(model).Where("slug = ?", candidate)
		if exceptID != 0 {
			q = q.Where("id <> ?", exceptID)
		}
		if err := q.Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", root, i)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
