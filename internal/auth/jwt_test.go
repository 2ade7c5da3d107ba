package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := NewTokens("attendance-api", "test-secret", time.Hour)

	raw, err := tokens.Issue(7, "student@example.com", RoleStudent)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.ID)
	assert.Equal(t, "student@example.com", claims.Email)
	assert.Equal(t, RoleStudent, claims.Role)
	assert.Equal(t, "attendance-api", claims.Issuer)
}

func TestVerifyExpired(t *testing.T) {
	tokens := NewTokens("attendance-api", "test-secret", time.Millisecond)

	raw, err := tokens.Issue(1, "t@example.com", RoleTeacher)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongKey(t *testing.T) {
	issued := NewTokens("attendance-api", "key-one", time.Hour)
	verifier := NewTokens("attendance-api", "key-two", time.Hour)

	raw, err := issued.Issue(1, "t@example.com", RoleTeacher)
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyIssuerMismatch(t *testing.T) {
	issued := NewTokens("someone-else", "test-secret", time.Hour)
	verifier := NewTokens("attendance-api", "test-secret", time.Hour)

	raw, err := issued.Issue(1, "t@example.com", RoleTeacher)
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyGarbage(t *testing.T) {
	tokens := NewTokens("attendance-api", "test-secret", time.Hour)

	_, err := tokens.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
