package utils

import (
	"strings"
	"testing"

	"ai-mistake-tracker/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("Secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret1", hash)
	assert.True(t, CheckPasswordHash("Secret1", hash))
	assert.False(t, CheckPasswordHash("secret1", hash))
	assert.False(t, CheckPasswordHash("Secret1", "not-a-hash"))
}

func TestValidatePassword(t *testing.T) {
	require.NoError(t, ValidatePassword("Abcde1"))

	for _, pw := range []string{"Ab1", "abcdef1", "ABCDEF1", "Abcdefg", strings.Repeat("Aa1", 30)} {
		assert.ErrorIs(t, ValidatePassword(pw), apperr.ErrInvalidArgument, pw)
	}
}

func TestValidateEmailAndName(t *testing.T) {
	assert.NoError(t, ValidateEmail("ada@example.org"))
	assert.Error(t, ValidateEmail("ada@example"))
	assert.Error(t, ValidateEmail("not an email"))

	assert.Equal(t, "ada@example.org", NormalizeEmail("  Ada@Example.ORG "))

	assert.NoError(t, ValidateName("Al"))
	assert.ErrorIs(t, ValidateName(" A "), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, ValidateName(strings.Repeat("n", 51)), apperr.ErrInvalidArgument)
}

func TestValidTheme(t *testing.T) {
	assert.True(t, ValidTheme("dark"))
	assert.False(t, ValidTheme("sepia"))
}
