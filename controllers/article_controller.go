package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// ArticleController exposes article reads, writes and lifecycle transitions.
type ArticleController struct {
	svc *services.Services
}

// NewArticleController creates an ArticleController.
func NewArticleController(svc *services.Services) *ArticleController {
	return &ArticleController{svc: svc}
}

type articleRequest struct {
	Title       *string    `json:"title" binding:"omitempty,max=255"`
	Subtitle    *string    `json:"subtitle" binding:"omitempty,max=255"`
	Excerpt     *string    `json:"excerpt" binding:"omitempty,max=1000"`
	Content     *string    `json:"content"`
	Slug        *string    `json:"slug" binding:"omitempty,max=180"`
	PublishedAt *time.Time `json:"published_at"`
	Status      *string    `json:"status" binding:"omitempty,oneof=draft review"`
	CategoryIDs []uint     `json:"category_ids"`
	TagIDs      []uint     `json:"tag_ids"`
	CoAuthorIDs []uint     `json:"co_author_ids"`
}

func (r articleRequest) input() services.ArticleInput {
	in := services.ArticleInput{
		Title:       r.Title,
		Subtitle:    r.Subtitle,
		Excerpt:     r.Excerpt,
		Content:     r.Content,
		Slug:        r.Slug,
		PublishedAt: r.PublishedAt,
		CategoryIDs: r.CategoryIDs,
		TagIDs:      r.TagIDs,
		CoAuthorIDs: r.CoAuthorIDs,
	}
	if r.Status != nil {
		st := models.ArticleStatus(*r.Status)
		in.Status = &st
	}
	return in
}

func articleFilter(ctx *gin.Context) services.ArticleFilter {
	return services.ArticleFilter{
		Status:   strings.TrimSpace(ctx.Query("status")),
		Category: strings.TrimSpace(ctx.Query("category")),
		Tag:      strings.TrimSpace(ctx.Query("tag")),
		AuthorID: queryUint(ctx, "author"),
		Featured: queryBool(ctx, "featured"),
		Search:   strings.TrimSpace(ctx.Query("q")),
	}
}

// List returns published articles, pinned first.
func (a *ArticleController) List(ctx *gin.Context) {
	p := pageFrom(ctx)
	items, total, err := a.svc.Articles.ListPublished(ctx.Request.Context(), articleFilter(ctx), p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 0, total)
}

// Show returns one article by slug.
func (a *ArticleController) Show(ctx *gin.Context) {
	art, err := a.svc.Articles.GetBySlug(ctx.Request.Context(), currentUser(ctx), ctx.Param("article"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, art)
}

// ListMine returns the caller's own articles in any status.
func (a *ArticleController) ListMine(ctx *gin.Context) {
	p := pageFrom(ctx)
	items, total, err := a.svc.Articles.ListMine(ctx.Request.Context(), currentUser(ctx), articleFilter(ctx), p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 0, total)
}

// ListAll is the editorial listing filterable by status.
func (a *ArticleController) ListAll(ctx *gin.Context) {
	p := pageFrom(ctx)
	items, total, err := a.svc.Articles.ListAll(ctx.Request.Context(), currentUser(ctx), articleFilter(ctx), p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 0, total)
}

// ListReported returns the reported-articles queue.
func (a *ArticleController) ListReported(ctx *gin.Context) {
	p := pageFrom(ctx)
	items, total, err := a.svc.Articles.ListReported(ctx.Request.Context(), currentUser(ctx), p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 20, total)
}

// Create stores a new article for the caller.
func (a *ArticleController) Create(ctx *gin.Context) {
	var req articleRequest
	if !bind(ctx, &req) {
		return
	}
	art, err := a.svc.Articles.Create(ctx.Request.Context(), currentUser(ctx), req.input())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, art)
}

// Update edits an article by id.
func (a *ArticleController) Update(ctx *gin.Context) {
	id, ok := parseID(ctx, "article")
	if !ok {
		return
	}
	var req articleRequest
	if !bind(ctx, &req) {
		return
	}
	art, err := a.svc.Articles.Update(ctx.Request.Context(), currentUser(ctx), id, req.input())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, art)
}

// Delete removes an article permanently.
func (a *ArticleController) Delete(ctx *gin.Context) {
	id, ok := parseID(ctx, "article")
	if !ok {
		return
	}
	if err := a.svc.Articles.Delete(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "article deleted", nil)
}

type articleAction func(ctx context.Context, actor *models.User, id uint) (*models.Article, error)

// transition adapts a lifecycle method to a handler.
func (a *ArticleController) transition(action articleAction) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := parseID(ctx, "article")
		if !ok {
			return
		}
		art, err := action(ctx.Request.Context(), currentUser(ctx), id)
		if err != nil {
			respondError(ctx, err)
			return
		}
		utils.Success(ctx, art)
	}
}

func (a *ArticleController) Approve() gin.HandlerFunc { return a.transition(a.svc.Articles.Approve) }

func (a *ArticleController) Archive() gin.HandlerFunc { return a.transition(a.svc.Articles.Archive) }

func (a *ArticleController) Restore() gin.HandlerFunc { return a.transition(a.svc.Articles.Restore) }

func (a *ArticleController) Trash() gin.HandlerFunc { return a.transition(a.svc.Articles.Trash) }

func (a *ArticleController) RestoreFromTrash() gin.HandlerFunc {
	return a.transition(a.svc.Articles.RestoreFromTrash)
}

func (a *ArticleController) ClearReports() gin.HandlerFunc {
	return a.transition(a.svc.Articles.ClearReports)
}

// SetFeatured toggles the featured flag to value.
func (a *ArticleController) SetFeatured(value bool) gin.HandlerFunc {
	return a.transition(func(ctx context.Context, actor *models.User, id uint) (*models.Article, error) {
		return a.svc.Articles.SetFeatured(ctx, actor, id, value)
	})
}

// SetPinned toggles the pinned flag to value.
func (a *ArticleController) SetPinned(value bool) gin.HandlerFunc {
	return a.transition(func(ctx context.Context, actor *models.User, id uint) (*models.Article, error) {
		return a.svc.Articles.SetPinned(ctx, actor, id, value)
	})
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// optionalReason binds an optional {"reason": "..."} body.
func optionalReason(ctx *gin.Context) (string, bool) {
	var req reasonRequest
	if ctx.Request.ContentLength == 0 {
		return "", true
	}
	if !bind(ctx, &req) {
		return "", false
	}
	return strings.TrimSpace(req.Reason), true
}

// Reject sends an article in review back to draft.
func (a *ArticleController) Reject(ctx *gin.Context) {
	id, ok := parseID(ctx, "article")
	if !ok {
		return
	}
	reason, ok := optionalReason(ctx)
	if !ok {
		return
	}
	art, err := a.svc.Articles.Reject(ctx.Request.Context(), currentUser(ctx), id, reason)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, art)
}

// Report flags a published article.
func (a *ArticleController) Report(ctx *gin.Context) {
	id, ok := parseID(ctx, "article")
	if !ok {
		return
	}
	reason, ok := optionalReason(ctx)
	if !ok {
		return
	}
	art, err := a.svc.Articles.Report(ctx.Request.Context(), currentUser(ctx), id, reason)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "article reported", gin.H{"id": art.ID, "report_count": art.ReportCount})
}
