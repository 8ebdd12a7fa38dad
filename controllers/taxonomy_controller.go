package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// TaxonomyController serves categories and tags.
type TaxonomyController struct {
	svc *services.Services
}

func NewTaxonomyController(svc *services.Services) *TaxonomyController {
	return &TaxonomyController{svc: svc}
}

type termRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Slug        *string `json:"slug" binding:"omitempty,max=110"`
	Description *string `json:"description" binding:"omitempty,max=500"`
}

func (r termRequest) input() services.TermInput {
	return services.TermInput{Name: r.Name, Slug: r.Slug, Description: r.Description}
}

func (t *TaxonomyController) Categories(ctx *gin.Context) {
	items, err := t.svc.Taxonomy.Categories(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, items)
}

func (t *TaxonomyController) Tags(ctx *gin.Context) {
	items, err := t.svc.Taxonomy.Tags(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, items)
}

func (t *TaxonomyController) CreateCategory(ctx *gin.Context) {
	var req termRequest
	if !bind(ctx, &req) {
		return
	}
	c, err := t.svc.Taxonomy.CreateCategory(ctx.Request.Context(), currentUser(ctx), req.input())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, c)
}

func (t *TaxonomyController) UpdateCategory(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req termRequest
	if !bind(ctx, &req) {
		return
	}
	c, err := t.svc.Taxonomy.UpdateCategory(ctx.Request.Context(), currentUser(ctx), id, req.input())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, c)
}

func (t *TaxonomyController) DeleteCategory(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := t.svc.Taxonomy.DeleteCategory(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "category deleted", nil)
}

func (t *TaxonomyController) CreateTag(ctx *gin.Context) {
	var req termRequest
	if !bind(ctx, &req) {
		return
	}
	tag, err := t.svc.Taxonomy.CreateTag(ctx.Request.Context(), currentUser(ctx), req.input())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, tag)
}

func (t *TaxonomyController) UpdateTag(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req termRequest
	if !bind(ctx, &req) {
		return
	}
	tag, err := t.svc.Taxonomy.UpdateTag(ctx.Request.Context(), currentUser(ctx), id, req.input())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, tag)
}

func (t *TaxonomyController) DeleteTag(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := t.svc.Taxonomy.DeleteTag(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "tag deleted", nil)
}
