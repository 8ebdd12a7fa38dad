package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

func TestSeedIsIdempotentAndKeepsEdits(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, RoleAdministrator)

	var perms int64
	env.db.Model(&models.Permission{}).Count(&perms)
	assert.EqualValues(t, len(PermissionNames()), perms)

	_, err := env.svc.Users.SetRolePermissions(env.ctx, admin, roleID(t, env, RoleSubscriber), []string{PermViewPosts})
	require.NoError(t, err)

	require.NoError(t, SeedRolesAndPermissions(env.db))
	env.db.Model(&models.Permission{}).Count(&perms)
	assert.EqualValues(t, len(PermissionNames()), perms)

	names, err := env.svc.Permissions.PermissionsForRoles(env.ctx, []uint{roleID(t, env, RoleSubscriber)})
	require.NoError(t, err)
	assert.Equal(t, []string{PermViewPosts}, names)
}

func TestSeededRoleMatrix(t *testing.T) {
	env := newTestEnv(t)
	users := map[string]*models.User{}
	for _, r := range []string{RoleAdministrator, RoleEditor, RoleAuthor, RoleContributor, RoleSubscriber} {
		users[r] = env.user(t, r)
	}

	tests := []struct {
		role string
		perm string
		want bool
	}{
		{RoleAdministrator, PermManageRoles, true},
		{RoleAdministrator, PermApprovePosts, true},
		{RoleEditor, PermEditOthersPosts, true},
		{RoleEditor, PermApprovePosts, false},
		{RoleEditor, PermBanUsers, false},
		{RoleEditor, PermDeleteCategories, false},
		{RoleAuthor, PermPublishPosts, true},
		{RoleAuthor, PermEditOthersPosts, false},
		{RoleContributor, PermCreatePosts, true},
		{RoleContributor, PermPublishPosts, false},
		{RoleContributor, PermArchivePosts, false},
		{RoleSubscriber, PermLikePosts, true},
		{RoleSubscriber, PermCreateComments, false},
		{RoleSubscriber, PermCreatePosts, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, env.svc.Authz.Can(env.ctx, users[tt.role], tt.perm), "%s %s", tt.role, tt.perm)
	}
}

func TestAuthorizerDeniesByDefault(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, RoleAdministrator)

	assert.False(t, env.svc.Authz.Can(env.ctx, nil, PermViewPosts))
	assert.False(t, env.svc.Authz.Can(env.ctx, &models.User{}, PermViewPosts))
	assert.False(t, env.svc.Authz.Can(env.ctx, admin, "launch_missiles"))
	requireKind(t, KindForbidden, env.svc.Authz.Require(env.ctx, nil, PermViewPosts))
}

func TestSetRolePermissionsInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, RoleAdministrator)
	sub := env.user(t, RoleSubscriber)

	assert.False(t, env.svc.Authz.Can(env.ctx, sub, PermCreateComments))

	_, err := env.svc.Users.SetRolePermissions(env.ctx, admin, roleID(t, env, RoleSubscriber), []string{"nope"})
	requireKind(t, KindValidation, err)
	_, err = env.svc.Users.SetRolePermissions(env.ctx, sub, roleID(t, env, RoleSubscriber), []string{PermCreateComments})
	requireKind(t, KindForbidden, err)

	role, err := env.svc.Users.SetRolePermissions(env.ctx, admin, roleID(t, env, RoleSubscriber), []string{PermViewPosts, PermCreateComments})
	require.NoError(t, err)
	assert.Len(t, role.Permissions, 2)
	assert.True(t, env.svc.Authz.Can(env.ctx, sub, PermCreateComments))
	assert.False(t, env.svc.Authz.Can(env.ctx, sub, PermLikePosts))
}

// hookedCache runs beforeSet once, right before the first write under prefix.
type hookedCache struct {
	*utils.MemoryCache
	prefix    string
	beforeSet func()
}

func (c *hookedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.beforeSet != nil && strings.HasPrefix(key, c.prefix) {
		hook := c.beforeSet
		c.beforeSet = nil
		hook()
	}
	return c.MemoryCache.Set(ctx, key, value, ttl)
}

func TestRoleChangeDuringCacheFillIsNotServedStale(t *testing.T) {
	env := newTestEnv(t)
	editor := env.user(t, RoleEditor)

	cache := &hookedCache{MemoryCache: utils.NewMemoryCache(), prefix: "perm:v"}
	store := NewPermissionStore(env.db, cache)
	authz := NewAuthorizer(store)

	cache.beforeSet = func() {
		var sub models.Role
		require.NoError(t, env.db.Where("name = ?", RoleSubscriber).First(&sub).Error)
		require.NoError(t, env.db.Model(editor).Association("Roles").Replace([]models.Role{sub}))
		store.ClearCache(env.ctx, editor.ID)
	}

	// this read loaded the Editor set before the demotion landed
	assert.True(t, authz.Can(env.ctx, editor, PermEditOthersPosts))
	assert.False(t, authz.Can(env.ctx, editor, PermEditOthersPosts))
	assert.True(t, authz.Can(env.ctx, editor, PermLikePosts))
}
