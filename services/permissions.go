package services

import (
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/inkwell/models"
)

// Permission names. The set is closed: the authorizer rejects anything not listed here.
const (
	PermViewUsers   = "view_users"
	PermCreateUsers = "create_users"
	PermEditUsers   = "edit_users"
	PermDeleteUsers = "delete_users"
	PermBanUsers    = "ban_users"
	PermBlockUsers  = "block_users"
	PermManageRoles = "manage_roles"

	PermViewPosts         = "view_posts"
	PermCreatePosts       = "create_posts"
	PermEditPosts         = "edit_posts"
	PermEditOthersPosts   = "edit_others_posts"
	PermDeletePosts       = "delete_posts"
	PermDeleteOthersPosts = "delete_others_posts"
	PermPublishPosts      = "publish_posts"
	PermApprovePosts      = "approve_posts"
	PermArchivePosts      = "archive_posts"
	PermRestorePosts      = "restore_posts"
	PermTrashPosts        = "trash_posts"
	PermFeaturePosts      = "feature_posts"
	PermReportPosts       = "report_posts"
	PermClearReports      = "clear_reports"
	PermLikePosts         = "like_posts"
	PermDislikePosts      = "dislike_posts"

	PermViewComments         = "view_comments"
	PermCreateComments       = "create_comments"
	PermEditComments         = "edit_comments"
	PermDeleteComments       = "delete_comments"
	PermDeleteOthersComments = "delete_others_comments"
	PermApproveComments      = "approve_comments"
	PermModerateComments     = "comment_moderate"
	PermReportComments       = "report_comments"

	PermViewCategories   = "view_categories"
	PermCreateCategories = "create_categories"
	PermEditCategories   = "edit_categories"
	PermDeleteCategories = "delete_categories"
	PermViewTags         = "view_tags"
	PermCreateTags       = "create_tags"
	PermEditTags         = "edit_tags"
	PermDeleteTags       = "delete_tags"

	PermSubscribeNewsletter = "subscribe_newsletter"
	PermViewSubscribers     = "view_subscribers"
	PermDeleteSubscribers   = "delete_subscribers"

	PermViewNotifications   = "view_notifications"
	PermCreateNotifications = "create_notifications"
	PermDeleteNotifications = "delete_notifications"

	PermViewMedia         = "view_media"
	PermUploadMedia       = "upload_media"
	PermEditMedia         = "edit_media"
	PermEditOthersMedia   = "edit_others_media"
	PermDeleteMedia       = "delete_media"
	PermDeleteOthersMedia = "delete_others_media"

	PermFollowUsers = "follow_users"
	PermViewReports = "view_reports"
)

// Seeded role names.
const (
	RoleAdministrator = "Administrator"
	RoleEditor        = "Editor"
	RoleAuthor        = "Author"
	RoleContributor   = "Contributor"
	RoleSubscriber    = "Subscriber"
)

type permissionDef struct {
	name  string
	group string
}

var catalog = []permissionDef{
	{PermViewUsers, "users"}, {PermCreateUsers, "users"}, {PermEditUsers, "users"}, {PermDeleteUsers, "users"},
	{PermBanUsers, "users"}, {PermBlockUsers, "users"}, {PermManageRoles, "users"},

	{PermViewPosts, "articles"}, {PermCreatePosts, "articles"}, {PermEditPosts, "articles"},
	{PermEditOthersPosts, "articles"}, {PermDeletePosts, "articles"}, {PermDeleteOthersPosts, "articles"},
	{PermPublishPosts, "articles"}, {PermApprovePosts, "articles"}, {PermArchivePosts, "articles"},
	{PermRestorePosts, "articles"}, {PermTrashPosts, "articles"}, {PermFeaturePosts, "articles"},
	{PermReportPosts, "articles"}, {PermClearReports, "articles"}, {PermLikePosts, "articles"},
	{PermDislikePosts, "articles"},

	{PermViewComments, "comments"}, {PermCreateComments, "comments"}, {PermEditComments, "comments"},
	{PermDeleteComments, "comments"}, {PermDeleteOthersComments, "comments"}, {PermApproveComments, "comments"},
	{PermModerateComments, "comments"}, {PermReportComments, "comments"},

	{PermViewCategories, "taxonomy"}, {PermCreateCategories, "taxonomy"}, {PermEditCategories, "taxonomy"},
	{PermDeleteCategories, "taxonomy"}, {PermViewTags, "taxonomy"}, {PermCreateTags, "taxonomy"},
	{PermEditTags, "taxonomy"}, {PermDeleteTags, "taxonomy"},

	{PermSubscribeNewsletter, "newsletter"}, {PermViewSubscribers, "newsletter"}, {PermDeleteSubscribers, "newsletter"},

	{PermViewNotifications, "notifications"}, {PermCreateNotifications, "notifications"},
	{PermDeleteNotifications, "notifications"},

	{PermViewMedia, "media"}, {PermUploadMedia, "media"}, {PermEditMedia, "media"},
	{PermEditOthersMedia, "media"}, {PermDeleteMedia, "media"}, {PermDeleteOthersMedia, "media"},

	{PermFollowUsers, "social"},
	{PermViewReports, "reports"},
}

var knownPermissions = func() map[string]struct{} {
	m := make(map[string]struct{}, len(catalog))
	for _, p := range catalog {
		m[p.name] = struct{}{}
	}
	return m
}()

// IsKnownPermission reports whether name is part of the static catalog.
func IsKnownPermission(name string) bool {
	_, ok := knownPermissions[name]
	return ok
}

// PermissionNames returns the catalog in declaration order.
func PermissionNames() []string {
	out := make([]string, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p.name)
	}
	return out
}

var authorPermissions = []string{
	PermViewPosts, PermCreatePosts, PermEditPosts, PermDeletePosts, PermPublishPosts, PermArchivePosts,
	PermRestorePosts, PermTrashPosts, PermReportPosts, PermLikePosts, PermDislikePosts,
	PermViewComments, PermCreateComments, PermEditComments, PermDeleteComments, PermReportComments,
	PermViewMedia, PermUploadMedia, PermEditMedia, PermDeleteMedia,
	PermViewCategories, PermViewTags, PermFollowUsers, PermSubscribeNewsletter,
}

// RolePermissionSeed returns the default permission names of each seeded role.
func RolePermissionSeed() map[string][]string {
	all := PermissionNames()
	return map[string][]string{
		RoleAdministrator: all,
		RoleEditor: without(all,
			PermCreateUsers, PermDeleteUsers, PermBanUsers, PermBlockUsers, PermManageRoles,
			PermEditOthersMedia, PermDeleteOthersMedia, PermDeleteCategories, PermDeleteTags, PermApprovePosts),
		RoleAuthor:      append([]string(nil), authorPermissions...),
		RoleContributor: without(authorPermissions, PermPublishPosts, PermArchivePosts, PermRestorePosts),
		RoleSubscriber: {
			PermViewPosts, PermViewComments, PermReportPosts, PermLikePosts, PermDislikePosts,
			PermReportComments, PermFollowUsers, PermSubscribeNewsletter,
		},
	}
}

func without(names []string, drop ...string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := skip[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// SeedRolesAndPermissions inserts the permission catalog and the default roles.
// A role's permission set is only filled when it has none, so admin edits survive restarts.
func SeedRolesAndPermissions(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		byName := make(map[string]models.Permission, len(catalog))
		for _, def := range catalog {
			p := models.Permission{Name: def.name}
			if err := tx.Where(models.Permission{Name: def.name}).
				Attrs(models.Permission{Slug: strings.ReplaceAll(def.name, "_", "-"), Group: def.group}).
				FirstOrCreate(&p).Error; err != nil {
				return err
			}
			byName[def.name] = p
		}

		for roleName, names := range RolePermissionSeed() {
			role := models.Role{Name: roleName}
			if err := tx.Where(models.Role{Name: roleName}).FirstOrCreate(&role).Error; err != nil {
				return err
			}
			count := tx.Model(&role).Association("Permissions").Count()
			if count > 0 {
				continue
			}
			perms := make([]models.Permission, 0, len(names))
			for _, n := range names {
				perms = append(perms, byName[n])
			}
			if err := tx.Model(&role).Association("Permissions").Append(perms); err != nil {
				return err
			}
		}
		return nil
	})
}
