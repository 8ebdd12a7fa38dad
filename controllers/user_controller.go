package controllers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// UserController covers the user admin console, roles and follows.
type UserController struct {
	svc *services.Services
}

func NewUserController(svc *services.Services) *UserController {
	return &UserController{svc: svc}
}

type adminUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=120"`
	Username *string `json:"username" binding:"omitempty,min=2,max=64"`
	Email    *string `json:"email" binding:"omitempty,email,max=191"`
	Password *string `json:"password" binding:"omitempty,min=8,max=72"`
	RoleIDs  []uint  `json:"role_ids"`
}

func (r adminUserRequest) input() services.AdminUserInput {
	return services.AdminUserInput{
		Name:     r.Name,
		Username: r.Username,
		Email:    r.Email,
		Password: r.Password,
		RoleIDs:  r.RoleIDs,
	}
}

// List returns users filtered by status, role name and search text.
func (u *UserController) List(ctx *gin.Context) {
	p := pageFrom(ctx)
	f := services.UserFilter{
		Status: strings.TrimSpace(ctx.Query("status")),
		Role:   strings.TrimSpace(ctx.Query("role")),
		Search: strings.TrimSpace(ctx.Query("q")),
	}
	items, total, err := u.svc.Users.List(ctx.Request.Context(), f, p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 20, total)
}

func (u *UserController) Show(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	user, err := u.svc.Users.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, user)
}

func (u *UserController) Create(ctx *gin.Context) {
	var req adminUserRequest
	if !bind(ctx, &req) {
		return
	}
	user, err := u.svc.Users.Create(ctx.Request.Context(), currentUser(ctx), req.input())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, user)
}

func (u *UserController) Update(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req adminUserRequest
	if !bind(ctx, &req) {
		return
	}
	user, err := u.svc.Users.Update(ctx.Request.Context(), currentUser(ctx), id, req.input())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, user)
}

func (u *UserController) Delete(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := u.svc.Users.Delete(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "user deleted", nil)
}

type userAction func(ctx context.Context, actor *models.User, id uint) (*models.User, error)

// Status wraps ban, unban, block and unblock.
func (u *UserController) Status(action userAction) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := parseID(ctx, "id")
		if !ok {
			return
		}
		user, err := action(ctx.Request.Context(), currentUser(ctx), id)
		if err != nil {
			respondError(ctx, err)
			return
		}
		utils.Success(ctx, user)
	}
}

// AssignRoles replaces the roles of a user.
func (u *UserController) AssignRoles(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		RoleIDs []uint `json:"role_ids" binding:"required"`
	}
	if !bind(ctx, &req) {
		return
	}
	user, err := u.svc.Users.AssignRoles(ctx.Request.Context(), currentUser(ctx), id, req.RoleIDs)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, user)
}

// Roles lists roles with their permissions.
func (u *UserController) Roles(ctx *gin.Context) {
	roles, err := u.svc.Users.ListRoles(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, roles)
}

// SetRolePermissions replaces a role's permission set.
func (u *UserController) SetRolePermissions(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Permissions []string `json:"permissions" binding:"required"`
	}
	if !bind(ctx, &req) {
		return
	}
	role, err := u.svc.Users.SetRolePermissions(ctx.Request.Context(), currentUser(ctx), id, req.Permissions)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, role)
}

func (u *UserController) Follow(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := u.svc.Users.Follow(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "following", nil)
}

func (u *UserController) Unfollow(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := u.svc.Users.Unfollow(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "unfollowed", nil)
}

func (u *UserController) Followers(ctx *gin.Context) {
	u.follows(ctx, u.svc.Users.Followers)
}

func (u *UserController) Following(ctx *gin.Context) {
	u.follows(ctx, u.svc.Users.Following)
}

func (u *UserController) follows(ctx *gin.Context, fn func(context.Context, uint, services.Page) ([]models.User, int64, error)) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	p := pageFrom(ctx)
	items, total, err := fn(ctx.Request.Context(), id, p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 20, total)
}
