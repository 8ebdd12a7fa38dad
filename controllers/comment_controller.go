package controllers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// CommentController serves threaded comments and their moderation.
type CommentController struct {
	svc *services.Services
}

func NewCommentController(svc *services.Services) *CommentController {
	return &CommentController{svc: svc}
}

// ListForArticle returns approved top-level comments with their first replies.
func (c *CommentController) ListForArticle(ctx *gin.Context) {
	p := pageFrom(ctx)
	items, total, err := c.svc.Comments.ListForArticle(ctx.Request.Context(), ctx.Param("article"), p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 0, total)
}

// ListReplies pages through the replies of one comment.
func (c *CommentController) ListReplies(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	p := pageFrom(ctx)
	items, total, err := c.svc.Comments.ListReplies(ctx.Request.Context(), id, p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 20, total)
}

// ListForModeration returns the moderation queue filtered by status or reports.
func (c *CommentController) ListForModeration(ctx *gin.Context) {
	p := pageFrom(ctx)
	f := services.ModerationFilter{Status: strings.TrimSpace(ctx.Query("status"))}
	if b := queryBool(ctx, "reported"); b != nil {
		f.Reported = *b
	}
	items, total, err := c.svc.Comments.ListForModeration(ctx.Request.Context(), currentUser(ctx), f, p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 20, total)
}

// Create posts a comment or a reply on an article.
func (c *CommentController) Create(ctx *gin.Context) {
	var req struct {
		Content  string `json:"content" binding:"required"`
		ParentID *uint  `json:"parent_id"`
	}
	if !bind(ctx, &req) {
		return
	}
	comment, err := c.svc.Comments.Create(ctx.Request.Context(), currentUser(ctx), ctx.Param("article"), services.CommentInput{
		Content:  req.Content,
		ParentID: req.ParentID,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, comment)
}

// Update edits a comment's text.
func (c *CommentController) Update(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if !bind(ctx, &req) {
		return
	}
	comment, err := c.svc.Comments.Update(ctx.Request.Context(), currentUser(ctx), id, req.Content)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, comment)
}

// Delete soft-deletes a comment, optionally recording a reason.
func (c *CommentController) Delete(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	reason, ok := optionalReason(ctx)
	if !ok {
		return
	}
	if err := c.svc.Comments.Delete(ctx.Request.Context(), currentUser(ctx), id, reason); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "comment deleted", nil)
}

// Moderate moves a comment to status.
func (c *CommentController) Moderate(status models.CommentStatus) gin.HandlerFunc {
	return c.action(func(ctx context.Context, actor *models.User, id uint) (*models.Comment, error) {
		return c.svc.Comments.Moderate(ctx, actor, id, status)
	})
}

// Report flags an approved comment.
func (c *CommentController) Report() gin.HandlerFunc {
	return c.action(c.svc.Comments.Report)
}

func (c *CommentController) action(fn func(ctx context.Context, actor *models.User, id uint) (*models.Comment, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := parseID(ctx, "id")
		if !ok {
			return
		}
		comment, err := fn(ctx.Request.Context(), currentUser(ctx), id)
		if err != nil {
			respondError(ctx, err)
			return
		}
		utils.Success(ctx, comment)
	}
}
