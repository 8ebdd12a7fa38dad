package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/inkwell/models"
)

func TestCommentModerationFlow(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	commenter := env.user(t, RoleContributor)
	a := env.published(t, author, admin, "Discuss")

	c, err := env.svc.Comments.Create(env.ctx, commenter, a.Slug, CommentInput{Content: "<script>x</script>Nice <b>post</b>"})
	require.NoError(t, err)
	assert.Equal(t, models.CommentPending, c.Status)
	assert.NotContains(t, c.Content, "<")

	items, total, err := env.svc.Comments.ListForArticle(env.ctx, a.Slug, Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	_, err = env.svc.Comments.Moderate(env.ctx, commenter, c.ID, models.CommentApproved)
	requireKind(t, KindForbidden, err)

	approved, err := env.svc.Comments.Moderate(env.ctx, admin, c.ID, models.CommentApproved)
	require.NoError(t, err)
	assert.Equal(t, models.CommentApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin.ID, *approved.ApprovedBy)

	_, err = env.svc.Comments.Moderate(env.ctx, admin, c.ID, models.CommentApproved)
	requireKind(t, KindConflict, err)
	_, err = env.svc.Comments.Moderate(env.ctx, admin, c.ID, models.CommentPending)
	requireKind(t, KindValidation, err)

	items, total, err = env.svc.Comments.ListForArticle(env.ctx, a.Slug, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, c.ID, items[0].ID)

	spam, err := env.svc.Comments.Moderate(env.ctx, admin, c.ID, models.CommentSpam)
	require.NoError(t, err)
	assert.Nil(t, spam.ApprovedBy)
}

func TestModeratorCommentsSkipQueue(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	a := env.published(t, author, admin, "Staff")

	c, err := env.svc.Comments.Create(env.ctx, admin, a.Slug, CommentInput{Content: "Welcome"})
	require.NoError(t, err)
	assert.Equal(t, models.CommentApproved, c.Status)
}

func TestCommentRequiresPermissionAndPublishedArticle(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	sub := env.user(t, RoleSubscriber)
	live := env.published(t, author, admin, "Live")
	draft := env.article(t, author, "Draft")

	_, err := env.svc.Comments.Create(env.ctx, sub, live.Slug, CommentInput{Content: "hi"})
	requireKind(t, KindForbidden, err)
	_, err = env.svc.Comments.Create(env.ctx, author, draft.Slug, CommentInput{Content: "hi"})
	requireKind(t, KindNotFound, err)
	_, err = env.svc.Comments.Create(env.ctx, author, live.Slug, CommentInput{Content: "<p></p>"})
	requireKind(t, KindValidation, err)
	_, err = env.svc.Comments.Create(env.ctx, author, live.Slug, CommentInput{Content: strings.Repeat("a", maxCommentLength+1)})
	requireKind(t, KindValidation, err)
}

func TestRepliesAreOneLevelDeep(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	a := env.published(t, author, admin, "Thread")
	other := env.published(t, author, admin, "Elsewhere")

	root, err := env.svc.Comments.Create(env.ctx, admin, a.Slug, CommentInput{Content: "root"})
	require.NoError(t, err)
	reply, err := env.svc.Comments.Create(env.ctx, admin, a.Slug, CommentInput{Content: "reply", ParentID: &root.ID})
	require.NoError(t, err)

	_, err = env.svc.Comments.Create(env.ctx, admin, a.Slug, CommentInput{Content: "nested", ParentID: &reply.ID})
	requireKind(t, KindConflict, err)
	_, err = env.svc.Comments.Create(env.ctx, admin, other.Slug, CommentInput{Content: "cross", ParentID: &root.ID})
	requireKind(t, KindConflict, err)

	var n int64
	env.db.Model(&models.Comment{}).Count(&n)
	assert.EqualValues(t, 2, n)

	items, _, err := env.svc.Comments.ListForArticle(env.ctx, a.Slug, Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.EqualValues(t, 1, items[0].RepliesCount)
	require.Len(t, items[0].Replies, 1)
	assert.Equal(t, reply.ID, items[0].Replies[0].ID)

	replies, total, err := env.svc.Comments.ListReplies(env.ctx, root.ID, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, reply.ID, replies[0].ID)
}

func TestCommentEditAndDeleteOwnership(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	other := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	a := env.published(t, author, admin, "Owned")
	c, err := env.svc.Comments.Create(env.ctx, author, a.Slug, CommentInput{Content: "mine"})
	require.NoError(t, err)

	_, err = env.svc.Comments.Update(env.ctx, other, c.ID, "hijack")
	requireKind(t, KindForbidden, err)
	edited, err := env.svc.Comments.Update(env.ctx, author, c.ID, "still mine")
	require.NoError(t, err)
	assert.Equal(t, "still mine", edited.Content)

	requireKind(t, KindForbidden, env.svc.Comments.Delete(env.ctx, other, c.ID, ""))
	require.NoError(t, env.svc.Comments.Delete(env.ctx, admin, c.ID, "off topic"))

	var stored models.Comment
	require.NoError(t, env.db.First(&stored, c.ID).Error)
	require.NotNil(t, stored.DeletedBy)
	assert.Equal(t, admin.ID, *stored.DeletedBy)
	assert.Equal(t, "off topic", stored.DeletedReason)

	requireKind(t, KindNotFound, env.svc.Comments.Delete(env.ctx, admin, c.ID, ""))

	deleted, total, err := env.svc.Comments.ListForModeration(env.ctx, admin, ModerationFilter{Status: "deleted"}, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, c.ID, deleted[0].ID)
}

func TestReportCommentOnlyWhenVisible(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	reader := env.user(t, RoleSubscriber)
	a := env.published(t, author, admin, "Reportable")

	pending, err := env.svc.Comments.Create(env.ctx, author, a.Slug, CommentInput{Content: "pending"})
	require.NoError(t, err)
	_, err = env.svc.Comments.Report(env.ctx, reader, pending.ID)
	requireKind(t, KindNotFound, err)

	visible, err := env.svc.Comments.Create(env.ctx, admin, a.Slug, CommentInput{Content: "visible"})
	require.NoError(t, err)
	got, err := env.svc.Comments.Report(env.ctx, reader, visible.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReportCount)

	queue, total, err := env.svc.Comments.ListForModeration(env.ctx, admin, ModerationFilter{Reported: true}, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, visible.ID, queue[0].ID)
}
