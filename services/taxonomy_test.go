package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/inkwell/models"
)

func TestCategoryCRUD(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, RoleAdministrator)
	editor := env.user(t, RoleEditor)
	author := env.user(t, RoleAuthor)

	_, err := env.svc.Taxonomy.CreateCategory(env.ctx, author, TermInput{Name: strPtr("News")})
	requireKind(t, KindForbidden, err)
	_, err = env.svc.Taxonomy.CreateCategory(env.ctx, editor, TermInput{Name: strPtr("<i></i>")})
	requireKind(t, KindValidation, err)

	first, err := env.svc.Taxonomy.CreateCategory(env.ctx, editor, TermInput{Name: strPtr("Go News"), Description: strPtr("<b>all</b> things")})
	require.NoError(t, err)
	assert.Equal(t, "go-news", first.Slug)
	assert.Equal(t, "all things", first.Description)

	second, err := env.svc.Taxonomy.CreateCategory(env.ctx, editor, TermInput{Name: strPtr("Go News")})
	require.NoError(t, err)
	assert.Equal(t, "go-news-2", second.Slug)

	renamed, err := env.svc.Taxonomy.UpdateCategory(env.ctx, editor, second.ID, TermInput{Name: strPtr("Rust News"), Slug: strPtr("Rust News")})
	require.NoError(t, err)
	assert.Equal(t, "Rust News", renamed.Name)
	assert.Equal(t, "rust-news", renamed.Slug)

	_, err = env.svc.Taxonomy.UpdateCategory(env.ctx, editor, 9999, TermInput{Name: strPtr("x")})
	requireKind(t, KindNotFound, err)

	cats, err := env.svc.Taxonomy.Categories(env.ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Go News", cats[0].Name)

	requireKind(t, KindForbidden, env.svc.Taxonomy.DeleteCategory(env.ctx, editor, first.ID))
	require.NoError(t, env.svc.Taxonomy.DeleteCategory(env.ctx, admin, first.ID))
	requireKind(t, KindNotFound, env.svc.Taxonomy.DeleteCategory(env.ctx, admin, first.ID))
}

func TestDeletingTagDetachesArticles(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, RoleAdministrator)
	author := env.user(t, RoleAuthor)

	tag, err := env.svc.Taxonomy.CreateTag(env.ctx, admin, TermInput{Name: strPtr("Gin")})
	require.NoError(t, err)
	content := "body"
	a, err := env.svc.Articles.Create(env.ctx, author, ArticleInput{Title: strPtr("Tagged"), Content: &content, TagIDs: []uint{tag.ID}})
	require.NoError(t, err)
	require.Len(t, a.Tags, 1)

	require.NoError(t, env.svc.Taxonomy.DeleteTag(env.ctx, admin, tag.ID))

	var links int64
	env.db.Table("article_tags").Where("tag_id = ?", tag.ID).Count(&links)
	assert.Zero(t, links)

	got, err := env.svc.Articles.GetByID(env.ctx, author, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
	var n int64
	env.db.Model(&models.Tag{}).Count(&n)
	assert.Zero(t, n)
}
