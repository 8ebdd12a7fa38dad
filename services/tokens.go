package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

// TokenPair is returned by login, refresh and OAuth callbacks.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService issues bearer tokens and keeps the access_tokens ledger used for revocation.
type TokenService struct {
	db         *gorm.DB
	blacklist  *utils.TokenBlacklist
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// IssuePair creates an access-api token and a refresh-token token for the user.
func (s *TokenService) IssuePair(ctx context.Context, userID uint) (*TokenPair, error) {
	var pair *TokenPair
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		pair, err = s.issuePair(tx, userID)
		return err
	})
	if err != nil {
		return nil, Internal(err)
	}
	return pair, nil
}

func (s *TokenService) issuePair(tx *gorm.DB, userID uint) (*TokenPair, error) {
	now := s.now()
	access, accessExp, err := s.issue(tx, userID, "access", []string{utils.AbilityAccessAPI}, now.Add(s.accessTTL))
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.issue(tx, userID, "refresh", []string{utils.AbilityRefreshToken}, now.Add(s.refreshTTL))
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresAt:        accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) issue(tx *gorm.DB, userID uint, name string, abilities []string, expiresAt time.Time) (string, time.Time, error) {
	signed, jti, err := utils.GenerateToken(s.secret, userID, abilities, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	row := models.AccessToken{
		UserID:    userID,
		TokenID:   jti,
		Name:      name,
		Abilities: strings.Join(abilities, ","),
		ExpiresAt: expiresAt,
	}
	if err := tx.Create(&row).Error; err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Authenticate validates a raw bearer token for ability and returns its active owner.
func (s *TokenService) Authenticate(ctx context.Context, raw, ability string) (*models.User, *models.AccessToken, error) {
	claims, err := utils.ParseToken(s.secret, raw)
	if err != nil {
		return nil, nil, Unauthorized("invalid token")
	}
	if s.blacklist.Contains(ctx, claims.ID) {
		return nil, nil, Unauthorized("token revoked")
	}

	var tok models.AccessToken
	if err := s.db.WithContext(ctx).Where("token_id = ?", claims.ID).First(&tok).Error; err != nil {
		return nil, nil, Unauthorized("invalid token")
	}
	now := s.now()
	if !tok.Usable(now) {
		return nil, nil, Unauthorized("token revoked")
	}
	if !tok.HasAbility(ability) {
		return nil, nil, Unauthorized("token lacks required ability")
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, tok.UserID).Error; err != nil {
		return nil, nil, Unauthorized("invalid token")
	}
	if !user.IsActive() {
		return nil, nil, Unauthorized("account " + string(user.Status))
	}

	if tok.LastUsedAt == nil || now.Sub(*tok.LastUsedAt) > time.Minute {
		_ = s.db.WithContext(ctx).Model(&tok).UpdateColumn("last_used_at", now).Error
	}
	return &user, &tok, nil
}

// Refresh consumes a refresh token and issues a new pair. A refresh token works once.
func (s *TokenService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	_, tok, err := s.Authenticate(ctx, raw, utils.AbilityRefreshToken)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.AccessToken
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, tok.ID).Error; err != nil {
			return err
		}
		if locked.RevokedAt != nil {
			return Unauthorized("token revoked")
		}
		now := s.now()
		if err := tx.Model(&locked).Update("revoked_at", now).Error; err != nil {
			return err
		}
		pair, err = s.issuePair(tx, locked.UserID)
		return err
	})
	if err != nil {
		return nil, Internal(err)
	}
	s.blacklist.Add(ctx, tok.TokenID, tok.ExpiresAt)
	return pair, nil
}

// Revoke marks one token revoked and blacklists it until expiry.
func (s *TokenService) Revoke(ctx context.Context, tokenID string) error {
	var tok models.AccessToken
	if err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&tok).Error; err != nil {
		return notFoundOr(err, "token not found")
	}
	if tok.RevokedAt == nil {
		if err := s.db.WithContext(ctx).Model(&tok).Update("revoked_at", s.now()).Error; err != nil {
			return Internal(err)
		}
	}
	s.blacklist.Add(ctx, tok.TokenID, tok.ExpiresAt)
	return nil
}

// RevokeAllForUser revokes every live token of the user except keepTokenID (may be empty).
func (s *TokenService) RevokeAllForUser(ctx context.Context, tx *gorm.DB, userID uint, keepTokenID string) error {
	if tx == nil {
		tx = s.db
	}
	now := s.now()
	q := tx.WithContext(ctx).Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now)
	if keepTokenID != "" {
		q = q.Where("token_id <> ?", keepTokenID)
	}
	var live []models.AccessToken
	if err := q.Find(&live).Error; err != nil {
		return err
	}
	if len(live) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(live))
	for _, t := range live {
		ids = append(ids, t.ID)
	}
	if err := tx.WithContext(ctx).Model(&models.AccessToken{}).Where("id IN ?", ids).Update("revoked_at", now).Error; err != nil {
		return err
	}
	for _, t := range live {
		s.blacklist.Add(ctx, t.TokenID, t.ExpiresAt)
	}
	return nil
}
