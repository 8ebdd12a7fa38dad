package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/inkwell/models"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello-world"},
		{"  Multiple   Spaces  ", "multiple-spaces"},
		{"Special@#Characters!", "special-characters"},
		{"Ünïcode Títle", "ünïcode-títle"},
		{"!!!", "untitled"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, slugify(tt.input), tt.input)
	}
}

func TestCreateArticleDefaultsToDraftWithUniqueSlug(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)

	first := env.article(t, author, "Same Title")
	second := env.article(t, author, "Same Title")

	assert.Equal(t, models.ArticleDraft, first.Status)
	assert.Nil(t, first.ApprovedBy)
	assert.Equal(t, "same-title", first.Slug)
	assert.Equal(t, "same-title-2", second.Slug)
	assert.Contains(t, first.ContentHTML, "<strong>markdown</strong>")
	require.Len(t, first.Authors, 1)
	assert.Equal(t, models.AuthorMain, first.Authors[0].Role)
}

func TestCreateArticleValidation(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)

	_, err := env.svc.Articles.Create(env.ctx, author, ArticleInput{Title: strPtr("  ")})
	requireKind(t, KindValidation, err)
	se := err.(*Error)
	assert.Contains(t, se.Fields, "title")
	assert.Contains(t, se.Fields, "content")

	published := models.ArticlePublished
	_, err = env.svc.Articles.Create(env.ctx, author, ArticleInput{Title: strPtr("t"), Content: strPtr("c"), Status: &published})
	requireKind(t, KindValidation, err)
}

func TestSubscriberCannotCreateArticles(t *testing.T) {
	env := newTestEnv(t)
	sub := env.user(t, RoleSubscriber)

	_, err := env.svc.Articles.Create(env.ctx, sub, ArticleInput{Title: strPtr("t"), Content: strPtr("c")})
	requireKind(t, KindForbidden, err)
}

func TestContributorCannotPublishOnCreate(t *testing.T) {
	env := newTestEnv(t)
	contributor := env.user(t, RoleContributor)
	at := env.clock.Now()

	_, err := env.svc.Articles.Create(env.ctx, contributor, ArticleInput{Title: strPtr("t"), Content: strPtr("c"), PublishedAt: &at})
	requireKind(t, KindForbidden, err)
}

func TestScheduledArticleIsPublishedWhenDue(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	at := env.clock.Now().Add(time.Hour)

	a, err := env.svc.Articles.Create(env.ctx, author, ArticleInput{Title: strPtr("Later"), Content: strPtr("c"), PublishedAt: &at})
	require.NoError(t, err)
	assert.Equal(t, models.ArticleScheduled, a.Status)
	require.NotNil(t, a.ApprovedBy)

	ids, err := env.svc.Articles.PublishDue(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	env.clock.Advance(2 * time.Hour)
	ids, err = env.svc.Articles.PublishDue(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID}, ids)

	got, err := env.svc.Articles.GetBySlug(env.ctx, nil, a.Slug)
	require.NoError(t, err)
	assert.Equal(t, models.ArticlePublished, got.Status)

	ids, err = env.svc.Articles.PublishDue(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestApproveRequiresPermissionAndPendingState(t *testing.T) {
	env := newTestEnv(t)
	contributor := env.user(t, RoleContributor)
	editor := env.user(t, RoleEditor)
	admin := env.user(t, RoleAdministrator)
	a := env.article(t, contributor, "Pending")

	_, err := env.svc.Articles.Approve(env.ctx, contributor, a.ID)
	requireKind(t, KindForbidden, err)
	_, err = env.svc.Articles.Approve(env.ctx, editor, a.ID)
	requireKind(t, KindForbidden, err)

	got, err := env.svc.Articles.Approve(env.ctx, admin, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticlePublished, got.Status)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, admin.ID, *got.ApprovedBy)
	require.NotNil(t, got.PublishedAt)

	_, err = env.svc.Articles.Approve(env.ctx, admin, a.ID)
	requireKind(t, KindConflict, err)
}

func TestRejectReturnsToDraft(t *testing.T) {
	env := newTestEnv(t)
	contributor := env.user(t, RoleContributor)
	admin := env.user(t, RoleAdministrator)
	review := models.ArticleReview
	a, err := env.svc.Articles.Create(env.ctx, contributor, ArticleInput{Title: strPtr("t"), Content: strPtr("c"), Status: &review})
	require.NoError(t, err)
	assert.Equal(t, models.ArticleReview, a.Status)

	got, err := env.svc.Articles.Reject(env.ctx, admin, a.ID, "needs <b>work</b>")
	require.NoError(t, err)
	assert.Equal(t, models.ArticleDraft, got.Status)
	assert.Nil(t, got.ApprovedBy)
}

func TestArchiveAndRestore(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)

	live := env.published(t, author, admin, "Live")
	archived, err := env.svc.Articles.Archive(env.ctx, author, live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleArchived, archived.Status)
	assert.NotNil(t, archived.ApprovedBy)

	_, err = env.svc.Articles.GetBySlug(env.ctx, nil, live.Slug)
	requireKind(t, KindNotFound, err)

	restored, err := env.svc.Articles.Restore(env.ctx, author, live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticlePublished, restored.Status)
	assert.WithinDuration(t, *live.PublishedAt, *restored.PublishedAt, time.Second)

	draft := env.article(t, author, "Never approved")
	_, err = env.svc.Articles.Archive(env.ctx, author, draft.ID)
	require.NoError(t, err)
	restored, err = env.svc.Articles.Restore(env.ctx, author, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleDraft, restored.Status)

	_, err = env.svc.Articles.Restore(env.ctx, author, draft.ID)
	requireKind(t, KindConflict, err)
}

func TestTrashAndRestoreFromTrash(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	other := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	a := env.published(t, author, admin, "Trash me")

	_, err := env.svc.Articles.Trash(env.ctx, other, a.ID)
	requireKind(t, KindForbidden, err)

	trashed, err := env.svc.Articles.Trash(env.ctx, author, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleTrashed, trashed.Status)
	assert.NotNil(t, trashed.TrashedAt)

	_, err = env.svc.Articles.Update(env.ctx, author, a.ID, ArticleInput{Title: strPtr("new")})
	requireKind(t, KindConflict, err)

	back, err := env.svc.Articles.RestoreFromTrash(env.ctx, author, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleDraft, back.Status)
	assert.Nil(t, back.ApprovedBy)
	assert.Nil(t, back.TrashedAt)
}

func TestUpdateOwnership(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	other := env.user(t, RoleAuthor)
	editor := env.user(t, RoleEditor)
	a := env.article(t, author, "Mine")

	_, err := env.svc.Articles.Update(env.ctx, other, a.ID, ArticleInput{Title: strPtr("Stolen")})
	requireKind(t, KindForbidden, err)

	got, err := env.svc.Articles.Update(env.ctx, editor, a.ID, ArticleInput{Title: strPtr("Edited"), Slug: strPtr("Edited Slug")})
	require.NoError(t, err)
	assert.Equal(t, "Edited", got.Title)
	assert.Equal(t, "edited-slug", got.Slug)

	review := models.ArticleReview
	got, err = env.svc.Articles.Update(env.ctx, author, a.ID, ArticleInput{Status: &review})
	require.NoError(t, err)
	assert.Equal(t, models.ArticleReview, got.Status)

	published := models.ArticlePublished
	_, err = env.svc.Articles.Update(env.ctx, author, a.ID, ArticleInput{Status: &published})
	requireKind(t, KindConflict, err)
}

func TestGetBySlugHidesUnpublished(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	stranger := env.user(t, RoleSubscriber)
	editor := env.user(t, RoleEditor)
	a := env.article(t, author, "Secret draft")

	_, err := env.svc.Articles.GetBySlug(env.ctx, nil, a.Slug)
	requireKind(t, KindNotFound, err)
	_, err = env.svc.Articles.GetBySlug(env.ctx, stranger, a.Slug)
	requireKind(t, KindNotFound, err)

	got, err := env.svc.Articles.GetBySlug(env.ctx, author, a.Slug)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	_, err = env.svc.Articles.GetBySlug(env.ctx, editor, a.Slug)
	require.NoError(t, err)
}

func TestGetBySlugCacheColdAndWarmAgree(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	a := env.published(t, author, admin, "Cached")

	cold, err := env.svc.Articles.GetBySlug(env.ctx, nil, a.Slug)
	require.NoError(t, err)
	_, cached := env.cache.Get(env.ctx, "article:slug:"+a.Slug)
	require.True(t, cached)

	warm, err := env.svc.Articles.GetBySlug(env.ctx, nil, a.Slug)
	require.NoError(t, err)
	assert.Equal(t, cold.ID, warm.ID)
	assert.Equal(t, cold.Title, warm.Title)
	assert.Equal(t, cold.Status, warm.Status)
	assert.Equal(t, cold.ContentHTML, warm.ContentHTML)
	assert.Equal(t, cold.LikesCount, warm.LikesCount)
	require.NotNil(t, warm.Creator)
	assert.Equal(t, author.ID, warm.Creator.ID)

	_, err = env.svc.Articles.Update(env.ctx, author, a.ID, ArticleInput{Title: strPtr("Fresh")})
	require.NoError(t, err)
	_, cached = env.cache.Get(env.ctx, "article:slug:"+a.Slug)
	assert.False(t, cached)

	fresh, err := env.svc.Articles.GetBySlug(env.ctx, nil, a.Slug)
	require.NoError(t, err)
	assert.Equal(t, "Fresh", fresh.Title)
}

func TestListPublishedOrdersPinnedFirst(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	first := env.published(t, author, admin, "First")
	env.clock.Advance(time.Minute)
	second := env.published(t, author, admin, "Second")
	env.article(t, author, "Draft")

	items, total, err := env.svc.Articles.ListPublished(env.ctx, ArticleFilter{}, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)

	_, err = env.svc.Articles.SetPinned(env.ctx, admin, first.ID, true)
	require.NoError(t, err)
	_, err = env.svc.Articles.SetPinned(env.ctx, admin, second.ID, true)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.svc.Articles.SetPinned(env.ctx, admin, first.ID, true)
	require.NoError(t, err)

	items, _, err = env.svc.Articles.ListPublished(env.ctx, ArticleFilter{}, Page{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, items[0].ID)
	assert.True(t, items[0].IsPinned)
	assert.True(t, items[1].IsPinned)

	_, err = env.svc.Articles.SetPinned(env.ctx, author, first.ID, false)
	requireKind(t, KindForbidden, err)
}

func TestListFiltersByCategoryAndSearch(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	cat, err := env.svc.Taxonomy.CreateCategory(env.ctx, admin, TermInput{Name: strPtr("Go News")})
	require.NoError(t, err)

	content := "gophers everywhere"
	a, err := env.svc.Articles.Create(env.ctx, author, ArticleInput{Title: strPtr("Tagged"), Content: &content, CategoryIDs: []uint{cat.ID}})
	require.NoError(t, err)
	_, err = env.svc.Articles.Approve(env.ctx, admin, a.ID)
	require.NoError(t, err)
	env.published(t, author, admin, "Other")

	items, total, err := env.svc.Articles.ListPublished(env.ctx, ArticleFilter{Category: cat.Slug}, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, a.ID, items[0].ID)

	items, _, err = env.svc.Articles.ListPublished(env.ctx, ArticleFilter{Search: "gophers"}, Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)
}

func TestReportAndClearReports(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	reader := env.user(t, RoleSubscriber)
	a := env.published(t, author, admin, "Reported")
	draft := env.article(t, author, "Hidden")

	_, err := env.svc.Articles.Report(env.ctx, reader, draft.ID, "spam")
	requireKind(t, KindNotFound, err)

	for i := 0; i < 2; i++ {
		_, err = env.svc.Articles.Report(env.ctx, reader, a.ID, "spam")
		require.NoError(t, err)
	}
	queue, total, err := env.svc.Articles.ListReported(env.ctx, admin, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, 2, queue[0].ReportCount)
	assert.Equal(t, models.ArticlePublished, queue[0].Status)

	_, _, err = env.svc.Articles.ListReported(env.ctx, reader, Page{})
	requireKind(t, KindForbidden, err)

	cleared, err := env.svc.Articles.ClearReports(env.ctx, admin, a.ID)
	require.NoError(t, err)
	assert.Zero(t, cleared.ReportCount)
	assert.Nil(t, cleared.LastReportedAt)
}

func TestDeleteArticleRemovesDependents(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	a := env.published(t, author, admin, "Doomed")

	_, err := env.svc.Comments.Create(env.ctx, author, a.Slug, CommentInput{Content: "first"})
	require.NoError(t, err)
	_, err = env.svc.Reactions.Like(env.ctx, a.Slug, AnonymousActor{IP: "10.0.0.1"})
	require.NoError(t, err)

	require.NoError(t, env.svc.Articles.Delete(env.ctx, author, a.ID))

	var n int64
	env.db.Model(&models.Comment{}).Where("article_id = ?", a.ID).Count(&n)
	assert.Zero(t, n)
	env.db.Model(&models.ArticleLike{}).Where("article_id = ?", a.ID).Count(&n)
	assert.Zero(t, n)
	env.db.Model(&models.ArticleAuthor{}).Where("article_id = ?", a.ID).Count(&n)
	assert.Zero(t, n)
	_, err = env.svc.Articles.GetByID(env.ctx, admin, a.ID)
	requireKind(t, KindNotFound, err)
}
