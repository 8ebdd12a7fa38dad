package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// NotificationController serves user inboxes and administrator broadcasts.
type NotificationController struct {
	svc *services.Services
}

func NewNotificationController(svc *services.Services) *NotificationController {
	return &NotificationController{svc: svc}
}

// Inbox lists the caller's notifications; ?unread=true limits to unread ones.
func (n *NotificationController) Inbox(ctx *gin.Context) {
	p := pageFrom(ctx)
	unread := queryBool(ctx, "unread")
	items, total, err := n.svc.Notifications.Inbox(ctx.Request.Context(), currentUser(ctx), unread != nil && *unread, p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 20, total)
}

func (n *NotificationController) UnreadCount(ctx *gin.Context) {
	count, err := n.svc.Notifications.UnreadCount(ctx.Request.Context(), currentUser(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"unread": count})
}

func (n *NotificationController) MarkRead(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := n.svc.Notifications.MarkRead(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "marked as read", nil)
}

func (n *NotificationController) MarkAllRead(ctx *gin.Context) {
	count, err := n.svc.Notifications.MarkAllRead(ctx.Request.Context(), currentUser(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "marked as read", gin.H{"updated": count})
}

// Create broadcasts a notification to all users, some roles or listed users.
func (n *NotificationController) Create(ctx *gin.Context) {
	var req struct {
		Type     string                 `json:"type" binding:"required,max=64"`
		Message  map[string]interface{} `json:"message" binding:"required"`
		Audience string                 `json:"audience" binding:"required,oneof=all_users roles users"`
		RoleIDs  []uint                 `json:"role_ids"`
		UserIDs  []uint                 `json:"user_ids"`
	}
	if !bind(ctx, &req) {
		return
	}
	notification, err := n.svc.Notifications.Create(ctx.Request.Context(), currentUser(ctx), services.NotificationInput{
		Type:     req.Type,
		Message:  req.Message,
		Audience: req.Audience,
		RoleIDs:  req.RoleIDs,
		UserIDs:  req.UserIDs,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, notification)
}

func (n *NotificationController) List(ctx *gin.Context) {
	p := pageFrom(ctx)
	items, total, err := n.svc.Notifications.List(ctx.Request.Context(), currentUser(ctx), p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 20, total)
}

func (n *NotificationController) Delete(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := n.svc.Notifications.Delete(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "notification deleted", nil)
}
