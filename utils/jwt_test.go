package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	signed, jti, err := GenerateToken("s3cret", 42, []string{AbilityAccessAPI}, time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := ParseToken("s3cret", signed)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, []string{AbilityAccessAPI}, claims.Abilities)

	_, err = ParseToken("other", signed)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	signed, _, err := GenerateToken("s3cret", 1, nil, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = ParseToken("s3cret", signed)
	assert.Error(t, err)
}

func TestPasswordAndTokenHashing(t *testing.T) {
	hash, err := HashPassword("password123")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "password123"))
	assert.False(t, CheckPassword(hash, "password124"))
	assert.False(t, CheckPassword("", "password123"))

	tok, err := RandomToken(32)
	require.NoError(t, err)
	assert.Len(t, tok, 64)
	assert.Equal(t, HashToken(tok), HashToken(tok))
	assert.NotEqual(t, tok, HashToken(tok))
}
