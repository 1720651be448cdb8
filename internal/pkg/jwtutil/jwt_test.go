package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, exp, err := GenerateToken("secret", time.Minute, 42, "555", "jti-1", TokenTypeAccess)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "555", claims.Phone)
	assert.Equal(t, "jti-1", claims.ID)
	assert.Equal(t, TokenTypeAccess, claims.Type)
}

func TestParseExpired(t *testing.T) {
	token, _, err := GenerateToken("secret", -time.Minute, 1, "555", "jti", TokenTypeRefresh)
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParseMalformed(t *testing.T) {
	token, _, err := GenerateToken("secret", time.Minute, 1, "555", "jti", TokenTypeAccess)
	require.NoError(t, err)

	_, err = ParseToken("other-secret", token)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseToken("secret", "not-a-token")
	assert.ErrorIs(t, err, ErrMalformed)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken("secret", raw)
	assert.ErrorIs(t, err, ErrMalformed)
}
