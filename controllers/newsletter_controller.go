package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// NewsletterController runs the double opt-in flow and the subscriber admin.
type NewsletterController struct {
	svc *services.Services
}

func NewNewsletterController(svc *services.Services) *NewsletterController {
	return &NewsletterController{svc: svc}
}

type emailTokenRequest struct {
	Email string `json:"email" binding:"required,email"`
	Token string `json:"token" binding:"required"`
}

// Subscribe starts a subscription and mails a verification token.
func (n *NewsletterController) Subscribe(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email,max=191"`
	}
	if !bind(ctx, &req) {
		return
	}
	if _, err := n.svc.Newsletter.Subscribe(ctx.Request.Context(), currentUser(ctx), req.Email); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "check your inbox to confirm the subscription", nil)
}

// Verify confirms a subscription with the mailed token.
func (n *NewsletterController) Verify(ctx *gin.Context) {
	var req emailTokenRequest
	if !bind(ctx, &req) {
		return
	}
	sub, err := n.svc.Newsletter.Verify(ctx.Request.Context(), req.Email, req.Token)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "subscription confirmed", sub)
}

// RequestUnsubscribe mails an unsubscribe token.
func (n *NewsletterController) RequestUnsubscribe(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if !bind(ctx, &req) {
		return
	}
	if err := n.svc.Newsletter.RequestUnsubscribe(ctx.Request.Context(), req.Email); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "if the address is subscribed a confirmation link has been sent", nil)
}

// ConfirmUnsubscribe ends a subscription with the mailed token.
func (n *NewsletterController) ConfirmUnsubscribe(ctx *gin.Context) {
	var req emailTokenRequest
	if !bind(ctx, &req) {
		return
	}
	sub, err := n.svc.Newsletter.ConfirmUnsubscribe(ctx.Request.Context(), req.Email, req.Token)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "unsubscribed", sub)
}

func (n *NewsletterController) List(ctx *gin.Context) {
	p := pageFrom(ctx)
	f := services.SubscriberFilter{
		Verified: queryBool(ctx, "verified"),
		Search:   strings.TrimSpace(ctx.Query("q")),
	}
	items, total, err := n.svc.Newsletter.List(ctx.Request.Context(), currentUser(ctx), f, p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 20, total)
}

func (n *NewsletterController) Delete(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := n.svc.Newsletter.Delete(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "subscriber deleted", nil)
}
