package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

func TestRegisterAssignsSubscriber(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.svc.Users.Register(env.ctx, RegisterInput{Name: "Ada <b>L</b>", Username: "ada", Email: " Ada@Example.com ", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "Ada L", u.Name)
	assert.Equal(t, models.UserStatusActive, u.Status)
	assert.NotEqual(t, "password123", u.PasswordHash)

	got, err := env.svc.Users.Get(env.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Roles, 1)
	assert.Equal(t, RoleSubscriber, got.Roles[0].Name)

	_, err = env.svc.Users.Register(env.ctx, RegisterInput{Email: "ada@example.com", Password: "password123"})
	requireKind(t, KindValidation, err)
	_, err = env.svc.Users.Register(env.ctx, RegisterInput{Username: "bad name!", Email: "x@example.com", Password: "password123"})
	requireKind(t, KindValidation, err)
}

func TestLoginAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, RoleAuthor)

	_, _, err := env.svc.Users.Login(env.ctx, u.Email, "wrong-password")
	requireKind(t, KindUnauthorized, err)
	_, _, err = env.svc.Users.Login(env.ctx, "nobody@example.com", "password123")
	requireKind(t, KindUnauthorized, err)

	_, pair, err := env.svc.Users.Login(env.ctx, u.Email, "password123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)

	who, tok, err := env.svc.Tokens.Authenticate(env.ctx, pair.AccessToken, utils.AbilityAccessAPI)
	require.NoError(t, err)
	assert.Equal(t, u.ID, who.ID)
	assert.Equal(t, "access", tok.Name)

	_, _, err = env.svc.Tokens.Authenticate(env.ctx, pair.RefreshToken, utils.AbilityAccessAPI)
	requireKind(t, KindUnauthorized, err)
	_, _, err = env.svc.Tokens.Authenticate(env.ctx, "not-a-jwt", utils.AbilityAccessAPI)
	requireKind(t, KindUnauthorized, err)
}

func TestRefreshTokenWorksOnce(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, RoleSubscriber)
	pair, err := env.svc.Tokens.IssuePair(env.ctx, u.ID)
	require.NoError(t, err)

	next, err := env.svc.Tokens.Refresh(env.ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)

	_, err = env.svc.Tokens.Refresh(env.ctx, pair.RefreshToken)
	requireKind(t, KindUnauthorized, err)
	_, err = env.svc.Tokens.Refresh(env.ctx, next.AccessToken)
	requireKind(t, KindUnauthorized, err)
}

func TestBanRevokesTokensAndBlocksLogin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, RoleAdministrator)
	editor := env.user(t, RoleEditor)
	u := env.user(t, RoleAuthor)
	pair, err := env.svc.Tokens.IssuePair(env.ctx, u.ID)
	require.NoError(t, err)

	_, err = env.svc.Users.Ban(env.ctx, editor, u.ID)
	requireKind(t, KindForbidden, err)
	_, err = env.svc.Users.Ban(env.ctx, admin, admin.ID)
	requireKind(t, KindConflict, err)

	banned, err := env.svc.Users.Ban(env.ctx, admin, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusBanned, banned.Status)
	assert.NotNil(t, banned.BannedAt)

	_, _, err = env.svc.Tokens.Authenticate(env.ctx, pair.AccessToken, utils.AbilityAccessAPI)
	requireKind(t, KindUnauthorized, err)
	_, _, err = env.svc.Users.Login(env.ctx, u.Email, "password123")
	requireKind(t, KindForbidden, err)

	_, err = env.svc.Users.Unblock(env.ctx, admin, u.ID)
	requireKind(t, KindConflict, err)
	back, err := env.svc.Users.Unban(env.ctx, admin, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusActive, back.Status)
	assert.Nil(t, back.BannedAt)

	_, _, err = env.svc.Users.Login(env.ctx, u.Email, "password123")
	require.NoError(t, err)
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, RoleAuthor)
	current, err := env.svc.Tokens.IssuePair(env.ctx, u.ID)
	require.NoError(t, err)
	other, err := env.svc.Tokens.IssuePair(env.ctx, u.ID)
	require.NoError(t, err)
	_, tok, err := env.svc.Tokens.Authenticate(env.ctx, current.AccessToken, utils.AbilityAccessAPI)
	require.NoError(t, err)

	err = env.svc.Users.ChangePassword(env.ctx, u, "wrong", "newpassword1", tok.TokenID)
	requireKind(t, KindValidation, err)

	require.NoError(t, env.svc.Users.ChangePassword(env.ctx, u, "password123", "newpassword1", tok.TokenID))

	_, _, err = env.svc.Tokens.Authenticate(env.ctx, current.AccessToken, utils.AbilityAccessAPI)
	require.NoError(t, err)
	_, _, err = env.svc.Tokens.Authenticate(env.ctx, other.AccessToken, utils.AbilityAccessAPI)
	requireKind(t, KindUnauthorized, err)
	_, _, err = env.svc.Users.Login(env.ctx, u.Email, "newpassword1")
	require.NoError(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, RoleSubscriber)

	require.NoError(t, env.svc.Users.ForgotPassword(env.ctx, "ghost@example.com"))
	env.mailer.AssertNotCalled(t, "Send", "ghost@example.com", "Reset your password", "")

	require.NoError(t, env.svc.Users.ForgotPassword(env.ctx, u.Email))
	token := env.mailer.lastToken(t, u.Email)

	requireKind(t, KindNotFound, env.svc.Users.ResetPassword(env.ctx, u.Email, "deadbeef", "newpassword1"))
	require.NoError(t, env.svc.Users.ResetPassword(env.ctx, u.Email, token, "newpassword1"))
	requireKind(t, KindNotFound, env.svc.Users.ResetPassword(env.ctx, u.Email, token, "another-one"))

	_, _, err := env.svc.Users.Login(env.ctx, u.Email, "newpassword1")
	require.NoError(t, err)
}

func TestPasswordResetTokenExpires(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, RoleSubscriber)
	require.NoError(t, env.svc.Users.ForgotPassword(env.ctx, u.Email))
	token := env.mailer.lastToken(t, u.Email)

	env.clock.Advance(2 * time.Hour)
	requireKind(t, KindConflict, env.svc.Users.ResetPassword(env.ctx, u.Email, token, "newpassword1"))
}

func TestAssignRolesChangesPermissions(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, RoleAdministrator)
	u := env.user(t, RoleSubscriber)

	assert.False(t, env.svc.Authz.Can(env.ctx, u, PermCreatePosts))

	updated, err := env.svc.Users.AssignRoles(env.ctx, admin, u.ID, []uint{roleID(t, env, RoleAuthor)})
	require.NoError(t, err)
	require.Len(t, updated.Roles, 1)
	assert.Equal(t, RoleAuthor, updated.Roles[0].Name)
	assert.True(t, env.svc.Authz.Can(env.ctx, u, PermCreatePosts))

	_, err = env.svc.Users.AssignRoles(env.ctx, u, u.ID, []uint{roleID(t, env, RoleAdministrator)})
	requireKind(t, KindForbidden, err)
}

func TestFollowGraph(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, RoleSubscriber)
	b := env.user(t, RoleSubscriber)

	requireKind(t, KindConflict, env.svc.Users.Follow(env.ctx, a, a.ID))
	requireKind(t, KindNotFound, env.svc.Users.Follow(env.ctx, a, 9999))
	require.NoError(t, env.svc.Users.Follow(env.ctx, a, b.ID))
	require.NoError(t, env.svc.Users.Follow(env.ctx, a, b.ID))

	followers, total, err := env.svc.Users.Followers(env.ctx, b.ID, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, a.ID, followers[0].ID)

	following, total, err := env.svc.Users.Following(env.ctx, a.ID, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, b.ID, following[0].ID)

	require.NoError(t, env.svc.Users.Unfollow(env.ctx, a, b.ID))
	_, total, err = env.svc.Users.Followers(env.ctx, b.ID, Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestOAuthLoginLinksExistingEmail(t *testing.T) {
	env := newTestEnv(t)
	existing := env.user(t, RoleAuthor)

	u, pair, err := env.svc.Users.OAuthLogin(env.ctx, OAuthIdentity{Provider: "github", ID: "42", Username: "octo", Email: existing.Email})
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, existing.ID, u.ID)

	fresh, _, err := env.svc.Users.OAuthLogin(env.ctx, OAuthIdentity{Provider: "google", ID: "g-1", Name: "New Person", Email: "new@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, fresh.ID)

	again, _, err := env.svc.Users.OAuthLogin(env.ctx, OAuthIdentity{Provider: "google", ID: "g-1", Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, again.ID)
}
