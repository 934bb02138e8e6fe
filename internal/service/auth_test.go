package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	auth := NewAuthService("secret")

	token, err := auth.IssueToken("operator", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
}

func TestValidateTokenRejects(t *testing.T) {
	auth := NewAuthService("secret")

	expired, err := auth.IssueToken("operator", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)
	_, err = auth.ValidateToken(expired)
	assert.Error(t, err)

	noSubject, err := auth.IssueToken("", jwt.RegisteredClaims{})
	require.NoError(t, err)
	_, err = auth.ValidateToken(noSubject)
	assert.Error(t, err)

	other, err := NewAuthService("other").IssueToken("operator", jwt.RegisteredClaims{})
	require.NoError(t, err)
	_, err = auth.ValidateToken(other)
	assert.Error(t, err)

	_, err = auth.ValidateToken("not-a-token")
	assert.Error(t, err)
}
