package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken(secret, "W1", "TKN1", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "W1", claims.WalletAddress)
	assert.Equal(t, "TKN1", claims.TokenAddress)
}

func TestParseRejects(t *testing.T) {
	expired, err := GenerateToken(secret, "W1", "", -time.Minute)
	require.NoError(t, err)

	otherKey, err := GenerateToken([]byte("other"), "W1", "", time.Hour)
	require.NoError(t, err)

	noWallet, err := GenerateToken(secret, "", "", time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{WalletAddress: "W1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"wrong key": otherKey,
		"no wallet": noWallet,
		"alg none":  none,
		"garbage":   "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(secret, token)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}
