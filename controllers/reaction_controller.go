package controllers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// ReactionController records likes and dislikes for signed-in and anonymous visitors.
type ReactionController struct {
	svc *services.Services
}

func NewReactionController(svc *services.Services) *ReactionController {
	return &ReactionController{svc: svc}
}

func (r *ReactionController) Like(ctx *gin.Context) { r.react(ctx, r.svc.Reactions.Like) }

func (r *ReactionController) Dislike(ctx *gin.Context) { r.react(ctx, r.svc.Reactions.Dislike) }

func (r *ReactionController) react(ctx *gin.Context, fn func(context.Context, string, services.Actor) (*services.ReactionResult, error)) {
	actor := services.ActorFor(currentUser(ctx), ctx.ClientIP())
	res, err := fn(ctx.Request.Context(), ctx.Param("article"), actor)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if res.Created {
		utils.Created(ctx, res)
		return
	}
	utils.Success(ctx, res)
}
