package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{2,64}$`)

// UserService owns accounts, credentials, roles and follows.
type UserService struct {
	db       *gorm.DB
	authz    *Authorizer
	perms    *PermissionStore
	tokens   *TokenService
	events   *Dispatcher
	mailer   utils.Mailer
	resetTTL time.Duration
	appURL   string
	now      func() time.Time
}

// RegisterInput is a self sign-up request.
type RegisterInput struct {
	Name     string
	Username string
	Email    string
	Password string
}

// Register creates an active account with the Subscriber role.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if in.Username != "" && !usernamePattern.MatchString(in.Username) {
		return nil, Validation("invalid username", map[string]string{"username": "may contain letters, digits, '.', '_' and '-' only"})
	}
	if err := s.ensureEmailFree(ctx, in.Email, 0); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, Internal(err)
	}
	user := models.User{
		Name:         utils.StripTags(in.Name),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Status:       models.UserStatusActive,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return s.assignRoleNames(tx, &user, RoleSubscriber)
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, emailTaken()
		}
		return nil, Internal(err)
	}
	s.events.Dispatch(Event{Name: EventUserRegistered, SubjectID: user.ID, ActorID: user.ID})
	return &user, nil
}

// Login checks credentials and issues a token pair.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil || !utils.CheckPassword(user.PasswordHash, password) {
		return nil, nil, Unauthorized("invalid email or password")
	}
	if err := statusError(&user); err != nil {
		return nil, nil, err
	}
	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	user.LastLoginAt = &now
	_ = s.db.WithContext(ctx).Model(&user).UpdateColumn("last_login_at", now).Error
	return &user, pair, nil
}

func statusError(u *models.User) error {
	switch u.Status {
	case models.UserStatusBanned:
		return Forbidden("account banned")
	case models.UserStatusBlocked:
		return Forbidden("account blocked")
	}
	return nil
}

// OAuthIdentity is the profile returned by an OAuth provider.
type OAuthIdentity struct {
	Provider  string
	ID        string
	Username  string
	Name      string
	Email     string
	AvatarURL string
}

// OAuthLogin finds or creates the account behind a provider identity and issues tokens.
// An existing local account with the same email is linked to the provider.
func (s *UserService) OAuthLogin(ctx context.Context, id OAuthIdentity) (*models.User, *TokenPair, error) {
	var user models.User
	db := s.db.WithContext(ctx)
	err := db.Where("provider = ? AND provider_id = ?", id.Provider, id.ID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"avatar_url": id.AvatarURL}
		_ = db.Model(&user).Updates(updates).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		email := strings.ToLower(strings.TrimSpace(id.Email))
		if email == "" {
			email = fmt.Sprintf("%s-%s@oauth.invalid", id.Provider, id.ID)
		}
		if lerr := db.Where("email = ?", email).First(&user).Error; lerr == nil {
			if err := db.Model(&user).Updates(map[string]interface{}{"provider": id.Provider, "provider_id": id.ID}).Error; err != nil {
				return nil, nil, Internal(err)
			}
			break
		} else if !errors.Is(lerr, gorm.ErrRecordNotFound) {
			return nil, nil, Internal(lerr)
		}
		user = models.User{
			Name:       utils.StripTags(id.Name),
			Username:   s.uniqueUsername(ctx, id.Username, id.Provider, id.ID),
			Email:      email,
			Provider:   id.Provider,
			ProviderID: id.ID,
			AvatarURL:  id.AvatarURL,
			Status:     models.UserStatusActive,
		}
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			return s.assignRoleNames(tx, &user, RoleSubscriber)
		}); err != nil {
			return nil, nil, Internal(err)
		}
		s.events.Dispatch(Event{Name: EventUserRegistered, SubjectID: user.ID, ActorID: user.ID, Payload: map[string]interface{}{"provider": id.Provider}})
	default:
		return nil, nil, Internal(err)
	}
	if err := statusError(&user); err != nil {
		return nil, nil, err
	}
	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return &user, pair, nil
}

func (s *UserService) uniqueUsername(ctx context.Context, base, provider, providerID string) string {
	base = strings.TrimSpace(base)
	if base == "" || !usernamePattern.MatchString(base) {
		base = provider + "-" + providerID
	}
	var n int64
	s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", base).Count(&n)
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%s", base, providerID)
}

// Get loads a user with roles.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Roles").First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "user not found")
	}
	return &user, nil
}

// ProfileInput carries optional profile updates; nil fields are left unchanged.
type ProfileInput struct {
	Name      *string
	Username  *string
	Bio       *string
	AvatarURL *string
}

// UpdateProfile edits the caller's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, in ProfileInput) (*models.User, error) {
	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = utils.StripTags(*in.Name)
	}
	if in.Username != nil {
		u := strings.TrimSpace(*in.Username)
		if !usernamePattern.MatchString(u) {
			return nil, Validation("invalid username", map[string]string{"username": "may contain letters, digits, '.', '_' and '-' only"})
		}
		updates["username"] = u
	}
	if in.Bio != nil {
		updates["bio"] = utils.Sanitize(strings.TrimSpace(*in.Bio))
	}
	if in.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*in.AvatarURL)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{ID: user.ID}).Updates(updates).Error; err != nil {
			return nil, Internal(err)
		}
	}
	return s.Get(ctx, user.ID)
}

// ChangePassword replaces the password and revokes every other session of the user.
func (s *UserService) ChangePassword(ctx context.Context, user *models.User, current, next, keepTokenID string) error {
	var fresh models.User
	if err := s.db.WithContext(ctx).First(&fresh, user.ID).Error; err != nil {
		return notFoundOr(err, "user not found")
	}
	if fresh.PasswordHash != "" && !utils.CheckPassword(fresh.PasswordHash, current) {
		return Validation("current password is incorrect", map[string]string{"current_password": "is incorrect"})
	}
	hash, err := utils.HashPassword(next)
	if err != nil {
		return Internal(err)
	}
	return Internal(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&fresh).Update("password_hash", hash).Error; err != nil {
			return err
		}
		return s.tokens.RevokeAllForUser(ctx, tx, fresh.ID, keepTokenID)
	}))
}

// ForgotPassword mails a reset token when the email belongs to an account.
// Unknown emails succeed silently so the endpoint cannot be used to probe accounts.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return Internal(err)
	}
	raw, err := utils.RandomToken(32)
	if err != nil {
		return Internal(err)
	}
	row := models.PasswordReset{
		Email:     email,
		TokenHash: utils.HashToken(raw),
		ExpiresAt: s.now().Add(s.resetTTL),
		CreatedAt: s.now(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_at", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return Internal(err)
	}
	body := fmt.Sprintf("Use this token to reset your password: %s\nReset link: %s/reset-password?email=%s&token=%s\nThe token expires in %d minutes.",
		raw, s.appURL, email, raw, int(s.resetTTL.Minutes()))
	if err := s.mailer.Send(email, "Reset your password", body); err != nil {
		utils.Sugar.Warnw("password reset mail failed", "email", email, "error", err)
		return Internal(err)
	}
	return nil
}

// ResetPassword consumes a reset token. A wrong token is NotFound, an expired one a Conflict.
func (s *UserService) ResetPassword(ctx context.Context, email, token, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	var row models.PasswordReset
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		return notFoundOr(err, "invalid reset token")
	}
	if row.TokenHash != utils.HashToken(token) {
		return NotFound("invalid reset token")
	}
	if !s.now().Before(row.ExpiresAt) {
		return Conflict("reset token expired")
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return Internal(err)
	}
	return Internal(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("email = ?", email).First(&user).Error; err != nil {
			return notFoundOr(err, "user not found")
		}
		if err := tx.Model(&user).Update("password_hash", hash).Error; err != nil {
			return err
		}
		if err := tx.Delete(&row).Error; err != nil {
			return err
		}
		return s.tokens.RevokeAllForUser(ctx, tx, user.ID, "")
	}))
}

// UserFilter narrows the admin user list.
type UserFilter struct {
	Status string
	Role   string
	Search string
}

// List returns users for the admin console.
func (s *UserService) List(ctx context.Context, f UserFilter, p Page) ([]models.User, int64, error) {
	p = p.Normalize(20)
	q := s.db.WithContext(ctx).Model(&models.User{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("name LIKE ? OR username LIKE ? OR email LIKE ?", like, like, like)
	}
	if f.Role != "" {
		q = q.Where("id IN (?)", s.db.Table("user_roles").
			Select("user_roles.user_id").
			Joins("JOIN roles ON roles.id = user_roles.role_id").
			Where("roles.name = ?", f.Role))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var users []models.User
	if err := q.Preload("Roles").Order("created_at DESC").Offset(p.Offset()).Limit(p.PageSize).Find(&users).Error; err != nil {
		return nil, 0, Internal(err)
	}
	return users, total, nil
}

// AdminUserInput creates or edits an account from the admin console.
type AdminUserInput struct {
	Name     *string
	Username *string
	Email    *string
	Password *string
	RoleIDs  []uint
}

// Create adds an account on behalf of an administrator.
func (s *UserService) Create(ctx context.Context, actor *models.User, in AdminUserInput) (*models.User, error) {
	if err := s.authz.Require(ctx, actor, PermCreateUsers); err != nil {
		return nil, err
	}
	if in.Email == nil || in.Password == nil {
		return nil, Validation("email and password are required", map[string]string{"email": "is required", "password": "is required"})
	}
	email := strings.ToLower(strings.TrimSpace(*in.Email))
	if err := s.ensureEmailFree(ctx, email, 0); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(*in.Password)
	if err != nil {
		return nil, Internal(err)
	}
	user := models.User{Email: email, PasswordHash: hash, Status: models.UserStatusActive}
	if in.Name != nil {
		user.Name = utils.StripTags(*in.Name)
	}
	if in.Username != nil {
		user.Username = strings.TrimSpace(*in.Username)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if len(in.RoleIDs) == 0 {
			return s.assignRoleNames(tx, &user, RoleSubscriber)
		}
		return s.replaceRoles(tx, &user, in.RoleIDs)
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, emailTaken()
		}
		return nil, Internal(err)
	}
	return s.Get(ctx, user.ID)
}

// Update edits an account on behalf of an administrator.
func (s *UserService) Update(ctx context.Context, actor *models.User, id uint, in AdminUserInput) (*models.User, error) {
	if err := s.authz.Require(ctx, actor, PermEditUsers); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = utils.StripTags(*in.Name)
	}
	if in.Username != nil {
		updates["username"] = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := s.ensureEmailFree(ctx, email, id); err != nil {
			return nil, err
		}
		updates["email"] = email
	}
	if in.Password != nil {
		hash, err := utils.HashPassword(*in.Password)
		if err != nil {
			return nil, Internal(err)
		}
		updates["password_hash"] = hash
	}
	if in.RoleIDs != nil && !s.authz.Can(ctx, actor, PermManageRoles) {
		return nil, Forbidden("you do not have permission to change roles")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(user).Updates(updates).Error; err != nil {
				return err
			}
		}
		if in.RoleIDs != nil {
			return s.replaceRoles(tx, user, in.RoleIDs)
		}
		return nil
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, emailTaken()
		}
		return nil, Internal(err)
	}
	if in.RoleIDs != nil {
		s.perms.ClearCache(ctx, id)
	}
	return s.Get(ctx, id)
}

// Delete hard-deletes an account. Authored content stays with a null owner.
func (s *UserService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if err := s.authz.Require(ctx, actor, PermDeleteUsers); err != nil {
		return err
	}
	if actor.ID == id {
		return Conflict("you cannot delete your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tokens.RevokeAllForUser(ctx, tx, id, ""); err != nil {
			return err
		}
		nullify := []struct {
			model  interface{}
			column string
		}{
			{&models.Article{}, "created_by"},
			{&models.Article{}, "approved_by"},
			{&models.Comment{}, "user_id"},
			{&models.Comment{}, "approved_by"},
			{&models.Media{}, "uploaded_by"},
			{&models.NewsletterSubscriber{}, "user_id"},
			{&models.Notification{}, "created_by"},
		}
		for _, n := range nullify {
			if err := tx.Model(n.model).Where(n.column+" = ?", id).Update(n.column, nil).Error; err != nil {
				return err
			}
		}
		cleanup := []struct {
			model interface{}
			where string
		}{
			{&models.ArticleAuthor{}, "user_id = ?"},
			{&models.ArticleLike{}, "user_id = ?"},
			{&models.ArticleDislike{}, "user_id = ?"},
			{&models.UserNotification{}, "user_id = ?"},
			{&models.AccessToken{}, "user_id = ?"},
		}
		for _, c := range cleanup {
			if err := tx.Where(c.where, id).Delete(c.model).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("follower_id = ? OR following_id = ?", id, id).Delete(&models.Follow{}).Error; err != nil {
			return err
		}
		if err := tx.Model(user).Association("Roles").Clear(); err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		return Internal(err)
	}
	s.perms.ClearCache(ctx, id)
	return nil
}

// Ban marks the user banned and revokes every live token.
func (s *UserService) Ban(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	return s.setStatus(ctx, actor, id, PermBanUsers, models.UserStatusBanned, EventUserBanned)
}

// Unban reactivates a banned user.
func (s *UserService) Unban(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	return s.setStatus(ctx, actor, id, PermBanUsers, models.UserStatusActive, "")
}

// Block marks the user blocked and revokes every live token.
func (s *UserService) Block(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	return s.setStatus(ctx, actor, id, PermBlockUsers, models.UserStatusBlocked, EventUserBlocked)
}

// Unblock reactivates a blocked user.
func (s *UserService) Unblock(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	return s.setStatus(ctx, actor, id, PermBlockUsers, models.UserStatusActive, "")
}

func (s *UserService) setStatus(ctx context.Context, actor *models.User, id uint, perm string, status models.UserStatus, event string) (*models.User, error) {
	if err := s.authz.Require(ctx, actor, perm); err != nil {
		return nil, err
	}
	if actor.ID == id && status != models.UserStatusActive {
		return nil, Conflict("you cannot change the status of your own account")
	}
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error; err != nil {
			return notFoundOr(err, "user not found")
		}
		updates := map[string]interface{}{"status": status}
		switch status {
		case models.UserStatusBanned:
			updates["banned_at"] = now
		case models.UserStatusBlocked:
			updates["blocked_at"] = now
		case models.UserStatusActive:
			if perm == PermBanUsers {
				if user.Status != models.UserStatusBanned {
					return Conflict("user is not banned")
				}
				updates["banned_at"] = nil
			} else {
				if user.Status != models.UserStatusBlocked {
					return Conflict("user is not blocked")
				}
				updates["blocked_at"] = nil
			}
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		if status != models.UserStatusActive {
			return s.tokens.RevokeAllForUser(ctx, tx, id, "")
		}
		return nil
	})
	if err != nil {
		return nil, Internal(err)
	}
	s.perms.ClearCache(ctx, id)
	if event != "" {
		s.events.Dispatch(Event{Name: event, SubjectID: id, ActorID: actor.ID})
	}
	return s.Get(ctx, id)
}

// AssignRoles replaces the user's roles and drops their cached permissions.
func (s *UserService) AssignRoles(ctx context.Context, actor *models.User, id uint, roleIDs []uint) (*models.User, error) {
	if err := s.authz.Require(ctx, actor, PermManageRoles); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.replaceRoles(tx, user, roleIDs)
	}); err != nil {
		return nil, Internal(err)
	}
	s.perms.ClearCache(ctx, id)
	s.events.Dispatch(Event{Name: EventUserRolesChanged, SubjectID: id, ActorID: actor.ID, Payload: map[string]interface{}{"role_ids": roleIDs}})
	return s.Get(ctx, id)
}

// ListRoles returns every role with its permissions.
func (s *UserService) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := s.db.WithContext(ctx).Preload("Permissions").Order("id ASC").Find(&roles).Error; err != nil {
		return nil, Internal(err)
	}
	return roles, nil
}

// SetRolePermissions replaces a role's permission set and invalidates every cached set.
func (s *UserService) SetRolePermissions(ctx context.Context, actor *models.User, roleID uint, names []string) (*models.Role, error) {
	if err := s.authz.Require(ctx, actor, PermManageRoles); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	for _, n := range names {
		if !IsKnownPermission(n) {
			fields["permissions"] = "unknown permission " + n
		}
	}
	if len(fields) > 0 {
		return nil, Validation("unknown permission", fields)
	}
	var role models.Role
	if err := s.db.WithContext(ctx).First(&role, roleID).Error; err != nil {
		return nil, notFoundOr(err, "role not found")
	}
	var perms []models.Permission
	if len(names) > 0 {
		if err := s.db.WithContext(ctx).Where("name IN ?", names).Find(&perms).Error; err != nil {
			return nil, Internal(err)
		}
	}
	if err := s.db.WithContext(ctx).Model(&role).Association("Permissions").Replace(perms); err != nil {
		return nil, Internal(err)
	}
	if err := s.perms.BumpCacheVersion(ctx); err != nil {
		return nil, Internal(err)
	}
	if err := s.db.WithContext(ctx).Preload("Permissions").First(&role, roleID).Error; err != nil {
		return nil, Internal(err)
	}
	return &role, nil
}

// Follow makes actor follow target. Following twice is a no-op.
func (s *UserService) Follow(ctx context.Context, actor *models.User, targetID uint) error {
	if err := s.authz.Require(ctx, actor, PermFollowUsers); err != nil {
		return err
	}
	if actor.ID == targetID {
		return Conflict("you cannot follow yourself")
	}
	if _, err := s.Get(ctx, targetID); err != nil {
		return err
	}
	edge := models.Follow{FollowerID: actor.ID, FollowingID: targetID, CreatedAt: s.now()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
	if res.Error != nil {
		return Internal(res.Error)
	}
	if res.RowsAffected > 0 {
		s.events.Dispatch(Event{Name: EventUserFollowed, SubjectID: targetID, ActorID: actor.ID})
	}
	return nil
}

// Unfollow removes the edge if present.
func (s *UserService) Unfollow(ctx context.Context, actor *models.User, targetID uint) error {
	if err := s.authz.Require(ctx, actor, PermFollowUsers); err != nil {
		return err
	}
	return Internal(s.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", actor.ID, targetID).
		Delete(&models.Follow{}).Error)
}

// Followers lists users following id.
func (s *UserService) Followers(ctx context.Context, id uint, p Page) ([]models.User, int64, error) {
	return s.followList(ctx, id, "follows.following_id = ?", "follows.follower_id", p)
}

// Following lists users id follows.
func (s *UserService) Following(ctx context.Context, id uint, p Page) ([]models.User, int64, error) {
	return s.followList(ctx, id, "follows.follower_id = ?", "follows.following_id", p)
}

func (s *UserService) followList(ctx context.Context, id uint, where, joinCol string, p Page) ([]models.User, int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	p = p.Normalize(20)
	q := s.db.WithContext(ctx).Model(&models.User{}).
		Joins("JOIN follows ON users.id = "+joinCol).
		Where(where, id)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var users []models.User
	if err := q.Order("follows.created_at DESC").Offset(p.Offset()).Limit(p.PageSize).Find(&users).Error; err != nil {
		return nil, 0, Internal(err)
	}
	return users, total, nil
}

func (s *UserService) ensureEmailFree(ctx context.Context, email string, exceptID uint) error {
	var n int64
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return Internal(err)
	}
	if n > 0 {
		return emailTaken()
	}
	return nil
}

func emailTaken() error {
	return Validation("email already registered", map[string]string{"email": "has already been taken"})
}

func (s *UserService) assignRoleNames(tx *gorm.DB, user *models.User, names ...string) error {
	var roles []models.Role
	if err := tx.Where("name IN ?", names).Find(&roles).Error; err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}
	return tx.Model(user).Association("Roles").Append(roles)
}

func (s *UserService) replaceRoles(tx *gorm.DB, user *models.User, roleIDs []uint) error {
	roleIDs = utils.UniqueUint(roleIDs)
	var roles []models.Role
	if len(roleIDs) > 0 {
		if err := tx.Where("id IN ?", roleIDs).Find(&roles).Error; err != nil {
			return err
		}
		if len(roles) != len(roleIDs) {
			return Validation("unknown role", map[string]string{"role_ids": "contains an unknown role"})
		}
	}
	return tx.Model(user).Association("Roles").Replace(roles)
}
