package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedCredential(t *testing.T) {
	cred, err := NewSharedCredential("secret")
	require.NoError(t, err)

	assert.True(t, cred.Verify("secret"))
	assert.False(t, cred.Verify("Secret"))
	assert.False(t, cred.Verify(""))
	assert.False(t, cred.Verify(strings.Repeat("x", maxPasswordLength+1)))
}

func TestNewSharedCredential_Empty(t *testing.T) {
	_, err := NewSharedCredential("")
	require.Error(t, err)
}

func TestHashPassword_SaltsEachHash(t *testing.T) {
	a, err := HashPassword("secret")
	require.NoError(t, err)
	b, err := HashPassword("secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "$argon2id$v=19$"))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	for _, hash := range []string{"", "$argon2i$v=19$m=1,t=1,p=1$AA$AA", "$argon2id$v=1$m=1,t=1,p=1$AA$AA", "plain"} {
		ok, err := VerifyPassword(hash, "secret")
		require.NoError(t, err)
		assert.False(t, ok, hash)
	}
}
