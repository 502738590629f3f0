package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, h.Verify(hash, "correct horse"))
	assert.False(t, h.Verify(hash, "wrong horse"))
}

func TestBcryptHasherRejectsShortPasswords(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	_, err := h.Hash("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}
