package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

const (
	permissionCacheTTL = time.Hour
	permVersionKey     = "perm:version"
)

// PermissionStore resolves role permissions from the database and caches the
// per-user set under a key that embeds a global and a per-user version counter.
// Invalidation only ever bumps a counter, so a reader that loaded roles before
// a change writes its result under a key nobody reads anymore.
type PermissionStore struct {
	db    *gorm.DB
	cache utils.Cache
}

func NewPermissionStore(db *gorm.DB, cache utils.Cache) *PermissionStore {
	return &PermissionStore{db: db, cache: cache}
}

// AllPermissions lists every persisted permission.
func (s *PermissionStore) AllPermissions(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// PermissionsForRoles returns the distinct permission names carried by the given roles.
func (s *PermissionStore) PermissionsForRoles(ctx context.Context, roleIDs []uint) ([]string, error) {
	names := []string{}
	if len(roleIDs) == 0 {
		return names, nil
	}
	err := s.db.WithContext(ctx).
		Table("permissions").
		Joins("JOIN role_permissions rp ON rp.permission_id = permissions.id").
		Where("rp.role_id IN ?", roleIDs).
		Distinct().
		Pluck("permissions.name", &names).Error
	return names, err
}

// PermissionsForUser returns the permission set of a user, served from cache when warm.
func (s *PermissionStore) PermissionsForUser(ctx context.Context, userID uint) (map[string]struct{}, error) {
	key := s.userKey(ctx, userID)
	var names []string
	if !utils.CacheGetJSON(ctx, s.cache, key, &names) {
		var roleIDs []uint
		if err := s.db.WithContext(ctx).Table("user_roles").
			Where("user_id = ?", userID).
			Pluck("role_id", &roleIDs).Error; err != nil {
			return nil, err
		}
		var err error
		names, err = s.PermissionsForRoles(ctx, roleIDs)
		if err != nil {
			return nil, err
		}
		utils.CacheSetJSON(ctx, s.cache, key, names, permissionCacheTTL)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

// ClearCache invalidates the cached permissions of one user by bumping its version.
func (s *PermissionStore) ClearCache(ctx context.Context, userID uint) {
	key := userVersionKey(userID)
	if _, err := s.cache.Incr(ctx, key); err != nil {
		utils.Sugar.Warnf("permission cache clear failed user=%d err=%v", userID, err)
		return
	}
	// outlives every entry written under an older version
	_ = s.cache.Expire(ctx, key, 2*permissionCacheTTL)
}

// BumpCacheVersion invalidates every cached permission set at once.
func (s *PermissionStore) BumpCacheVersion(ctx context.Context) error {
	_, err := s.cache.Incr(ctx, permVersionKey)
	return err
}

func userVersionKey(userID uint) string {
	return fmt.Sprintf("perm:user:%d:ver", userID)
}

func (s *PermissionStore) version(ctx context.Context, key string) int64 {
	b, ok := s.cache.Get(ctx, key)
	if !ok {
		return 0
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (s *PermissionStore) userKey(ctx context.Context, userID uint) string {
	return fmt.Sprintf("perm:v%d:user:%d:v%d", s.version(ctx, permVersionKey), userID, s.version(ctx, userVersionKey(userID)))
}
