package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	g := NewGate([]Account{{Username: "Alice", PasswordHash: hash}})
	assert.False(t, g.Open())

	assert.True(t, g.Allowed("alice"))
	assert.True(t, g.Allowed(" ALICE "))
	assert.False(t, g.Allowed("mallory"))

	assert.NoError(t, g.Authorize("alice", "hunter2"))
	assert.ErrorIs(t, g.Authorize("alice", "hunter3"), ErrBadCredentials)
	assert.ErrorIs(t, g.Authorize("mallory", "hunter2"), ErrNotAllowed)
}

func TestOpenGate(t *testing.T) {
	g := NewGate(nil)
	assert.True(t, g.Open())
	assert.True(t, g.Allowed("anyone"))
	assert.NoError(t, g.Authorize("anyone", ""))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}
