package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "ADMIN", 15)
	require.NoError(t, err)

	c, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), c.UserID)
	assert.Equal(t, "ADMIN", c.Role)

	_, err = ParseAccessToken("other-secret", tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		tok, err := NewAccessToken("secret", 1, "USER", -1)
		require.NoError(t, err)
		_, err = ParseAccessToken("secret", tok.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("alg none", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": "1", "role": "ADMIN", "exp": 9999999999,
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = ParseAccessToken("secret", raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing role", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "1", "exp": 9999999999,
		}).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = ParseAccessToken("secret", raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestOpaqueTokens(t *testing.T) {
	a, err := NewReservationToken()
	require.NoError(t, err)
	b, err := NewReservationToken()
	require.NoError(t, err)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.Len(t, HashToken(a.Raw), 64)
	assert.Equal(t, HashToken(a.Raw), HashToken(a.Raw))

	r, err := NewRefreshToken(7)
	require.NoError(t, err)
	assert.Len(t, r.Raw, 96)
	assert.False(t, r.Exp.IsZero())
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "hunter22"))
	assert.False(t, VerifyPassword(hash, "hunter23"))

	p, err := RandomPassword()
	require.NoError(t, err)
	assert.Len(t, p, 48)
}
