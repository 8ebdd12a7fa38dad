package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token abilities.
const (
	AbilityAccessAPI    = "access-api"
	AbilityRefreshToken = "refresh-token"
)

// Claims defines JWT claims used in the application. The registered ID (jti) keys the access_tokens row.
type Claims struct {
	UserID    uint     `json:"user_id"`
	Abilities []string `json:"abilities"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed JWT for the user and returns it with its token id.
func GenerateToken(secret string, userID uint, abilities []string, expiresAt time.Time) (string, string, error) {
	jti := uuid.NewString()
	claims := Claims{
		UserID:    userID,
		Abilities: abilities,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// ParseToken validates a JWT and returns its claims.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
