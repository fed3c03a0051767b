package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT("firebase-uid-1", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "firebase-uid-1", claims.UserID)
	assert.Equal(t, "firebase-uid-1", claims.Subject)
}

func TestParseJWTRejects(t *testing.T) {
	valid, err := GenerateJWT("u1", "secret", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateJWT("u1", "secret", -time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{name: "wrong secret", token: valid, secret: "other"},
		{name: "expired", token: expired, secret: "secret"},
		{name: "unsigned", token: none, secret: "secret"},
		{name: "garbage", token: "not-a-token", secret: "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJWT(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}

	_, err = GenerateJWT("", "secret", time.Hour)
	assert.Error(t, err)
}
