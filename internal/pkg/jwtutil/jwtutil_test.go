package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("s3cret", time.Hour, "user_42", "ada")
	require.NoError(t, err)

	claims, err := ParseToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "user_42", claims.UserID)
	assert.Equal(t, "ada", claims.Username)
}

func TestParseTokenRejectsBadInput(t *testing.T) {
	token, err := GenerateToken("s3cret", time.Hour, "user_42", "ada")
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateToken("s3cret", -time.Minute, "user_42", "ada")
	require.NoError(t, err)
	_, err = ParseToken("s3cret", expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("s3cret", "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
