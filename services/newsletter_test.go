package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/inkwell/models"
)

func TestNewsletterDoubleOptIn(t *testing.T) {
	env := newTestEnv(t)
	const email = "reader@example.com"

	_, err := env.svc.Newsletter.Subscribe(env.ctx, nil, "not-an-email")
	requireKind(t, KindValidation, err)

	sub, err := env.svc.Newsletter.Subscribe(env.ctx, nil, " Reader@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, email, sub.Email)
	assert.False(t, sub.IsVerified)
	token := env.mailer.lastToken(t, email)

	var stored models.NewsletterSubscriber
	require.NoError(t, env.db.First(&stored, sub.ID).Error)
	assert.NotEqual(t, token, stored.VerificationToken)

	_, err = env.svc.Newsletter.Verify(env.ctx, email, "0000")
	requireKind(t, KindNotFound, err)
	_, err = env.svc.Newsletter.Verify(env.ctx, "other@example.com", token)
	requireKind(t, KindNotFound, err)

	verified, err := env.svc.Newsletter.Verify(env.ctx, email, token)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.NotNil(t, verified.SubscribedAt)

	_, err = env.svc.Newsletter.Verify(env.ctx, email, token)
	requireKind(t, KindNotFound, err)
	_, err = env.svc.Newsletter.Subscribe(env.ctx, nil, email)
	requireKind(t, KindConflict, err)
}

func TestNewsletterUnsubscribe(t *testing.T) {
	env := newTestEnv(t)
	const email = "leaver@example.com"
	_, err := env.svc.Newsletter.Subscribe(env.ctx, nil, email)
	require.NoError(t, err)
	_, err = env.svc.Newsletter.Verify(env.ctx, email, env.mailer.lastToken(t, email))
	require.NoError(t, err)

	require.NoError(t, env.svc.Newsletter.RequestUnsubscribe(env.ctx, "unknown@example.com"))
	require.NoError(t, env.svc.Newsletter.RequestUnsubscribe(env.ctx, email))
	token := env.mailer.lastToken(t, email)

	_, err = env.svc.Newsletter.Verify(env.ctx, email, token)
	requireKind(t, KindNotFound, err)

	gone, err := env.svc.Newsletter.ConfirmUnsubscribe(env.ctx, email, token)
	require.NoError(t, err)
	assert.False(t, gone.IsVerified)
	assert.NotNil(t, gone.UnsubscribedAt)

	_, err = env.svc.Newsletter.Subscribe(env.ctx, nil, email)
	require.NoError(t, err)
}

func TestNewsletterExpiredTokenChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	const email = "late@example.com"
	sub, err := env.svc.Newsletter.Subscribe(env.ctx, nil, email)
	require.NoError(t, err)
	token := env.mailer.lastToken(t, email)

	env.clock.Advance(25 * time.Hour)
	_, err = env.svc.Newsletter.Verify(env.ctx, email, token)
	requireKind(t, KindConflict, err)

	var stored models.NewsletterSubscriber
	require.NoError(t, env.db.First(&stored, sub.ID).Error)
	assert.False(t, stored.IsVerified)
	assert.NotEmpty(t, stored.VerificationToken)
}

func TestNewsletterAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, RoleAdministrator)
	author := env.user(t, RoleAuthor)

	sub, err := env.svc.Newsletter.Subscribe(env.ctx, author, author.Email)
	require.NoError(t, err)
	require.NotNil(t, sub.UserID)
	assert.Equal(t, author.ID, *sub.UserID)

	_, _, err = env.svc.Newsletter.List(env.ctx, author, SubscriberFilter{}, Page{})
	requireKind(t, KindForbidden, err)

	unverified := false
	items, total, err := env.svc.Newsletter.List(env.ctx, admin, SubscriberFilter{Verified: &unverified}, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, sub.ID, items[0].ID)

	require.NoError(t, env.svc.Newsletter.Delete(env.ctx, admin, sub.ID))
	requireKind(t, KindNotFound, env.svc.Newsletter.Delete(env.ctx, admin, sub.ID))
}
