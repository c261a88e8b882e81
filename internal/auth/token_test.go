package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_GenerateAndVerify(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("alice.agents", time.Hour)
	require.NoError(t, err)

	caller, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice.agents", caller.ID)
	assert.Empty(t, caller.Scope)
	assert.False(t, caller.IsCapability())
	assert.Equal(t, int64(-1), caller.Seq)
}

func TestJWTVerifier_CapabilityToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.GenerateCapability("reputation.service", 7, time.Minute)
	require.NoError(t, err)

	caller, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "reputation.service", caller.ID)
	assert.Equal(t, ScopeReputationApply, caller.Scope)
	assert.True(t, caller.IsCapability())
	assert.Equal(t, int64(7), caller.Seq)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	other := NewJWTVerifier([]byte("other-secret"))

	token, err := v.Generate("alice.agents", time.Hour)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("alice.agents", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_Garbage(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	_, err := v.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
