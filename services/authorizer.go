package services

import (
	"context"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

// Authorizer answers permission questions. Every failure path denies.
type Authorizer struct {
	store *PermissionStore
}

func NewAuthorizer(store *PermissionStore) *Authorizer {
	return &Authorizer{store: store}
}

// Can reports whether some role of user carries perm.
func (a *Authorizer) Can(ctx context.Context, user *models.User, perm string) bool {
	if user == nil || user.ID == 0 || !IsKnownPermission(perm) {
		return false
	}
	set, err := a.store.PermissionsForUser(ctx, user.ID)
	if err != nil {
		utils.Sugar.Errorw("permission lookup failed", "user_id", user.ID, "permission", perm, "error", err)
		return false
	}
	_, ok := set[perm]
	return ok
}

// CanAny reports whether user holds at least one of perms.
func (a *Authorizer) CanAny(ctx context.Context, user *models.User, perms ...string) bool {
	for _, p := range perms {
		if a.Can(ctx, user, p) {
			return true
		}
	}
	return false
}

// CanOnOwnOrAll allows adminPerm on anything, or ownPerm when user owns the resource.
func (a *Authorizer) CanOnOwnOrAll(ctx context.Context, user *models.User, adminPerm, ownPerm string, ownerID uint) bool {
	if a.Can(ctx, user, adminPerm) {
		return true
	}
	return user != nil && ownerID != 0 && ownerID == user.ID && a.Can(ctx, user, ownPerm)
}

// Require returns a Forbidden error unless user holds perm.
func (a *Authorizer) Require(ctx context.Context, user *models.User, perm string) error {
	if !a.Can(ctx, user, perm) {
		return Forbidden("you do not have permission to perform this action")
	}
	return nil
}
