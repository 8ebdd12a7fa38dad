package services

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/inkwell/models"
)

func TestLikeReplacesDislike(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	reader := env.user(t, RoleSubscriber)
	a := env.published(t, author, admin, "Reactions")
	actor := UserActor{UserID: reader.ID}

	res, err := env.svc.Reactions.Dislike(env.ctx, a.Slug, actor)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.EqualValues(t, 0, res.LikesCount)
	assert.EqualValues(t, 1, res.DislikesCount)

	res, err = env.svc.Reactions.Like(env.ctx, a.Slug, actor)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, ReactionLike, res.Reaction)
	assert.EqualValues(t, 1, res.LikesCount)
	assert.EqualValues(t, 0, res.DislikesCount)

	again, err := env.svc.Reactions.Like(env.ctx, a.Slug, actor)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.ID, again.ID)
	assert.EqualValues(t, 1, again.LikesCount)
}

func TestAnonymousAndUserReactionsAreSeparate(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	reader := env.user(t, RoleSubscriber)
	a := env.published(t, author, admin, "Mixed")

	_, err := env.svc.Reactions.Like(env.ctx, a.Slug, AnonymousActor{IP: "192.0.2.1"})
	require.NoError(t, err)
	res, err := env.svc.Reactions.Like(env.ctx, a.Slug, UserActor{UserID: reader.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.LikesCount)

	got, err := env.svc.Articles.GetBySlug(env.ctx, nil, a.Slug)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.LikesCount)
}

func TestConcurrentLikesCountOncePerActor(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	a := env.published(t, author, admin, "Busy")

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := env.svc.Reactions.Like(env.ctx, a.Slug, AnonymousActor{IP: "198.51.100.7"})
			errs <- err
		}()
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.Reactions.Like(env.ctx, a.Slug, AnonymousActor{IP: fmt.Sprintf("203.0.113.%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var n int64
	env.db.Model(&models.ArticleLike{}).Where("article_id = ? AND ip_address = ?", a.ID, "198.51.100.7").Count(&n)
	assert.EqualValues(t, 1, n)
	env.db.Model(&models.ArticleLike{}).Where("article_id = ?", a.ID).Count(&n)
	assert.EqualValues(t, 21, n)
}

func TestReactionsRequirePublishedArticle(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	a := env.article(t, author, "Draft")

	_, err := env.svc.Reactions.Like(env.ctx, a.Slug, AnonymousActor{IP: "192.0.2.1"})
	requireKind(t, KindConflict, err)
	_, err = env.svc.Reactions.Like(env.ctx, "missing", AnonymousActor{IP: "192.0.2.1"})
	requireKind(t, KindNotFound, err)
	_, err = env.svc.Reactions.Like(env.ctx, a.Slug, AnonymousActor{IP: ""})
	requireKind(t, KindValidation, err)
}

func TestActorFor(t *testing.T) {
	assert.Equal(t, UserActor{UserID: 7}, ActorFor(&models.User{ID: 7}, "192.0.2.1"))
	assert.Equal(t, AnonymousActor{IP: "192.0.2.1"}, ActorFor(nil, " 192.0.2.1 "))
}
