package models

// All lists every model for auto-migration, in dependency order.
func All() []interface{} {
	return []interface{}{
		&Permission{}, &Role{}, &User{}, &Follow{},
		&AccessToken{}, &PasswordReset{},
		&Category{}, &Tag{}, &Article{}, &ArticleAuthor{},
		&Comment{}, &ArticleLike{}, &ArticleDislike{},
		&Media{}, &NewsletterSubscriber{},
		&Notification{}, &UserNotification{},
	}
}
