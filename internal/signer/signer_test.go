package signer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEd448(t *testing.T) {
	k, err := NewEd448()
	require.NoError(t, err)

	msg := []byte("configure account")
	sig, err := k.Sign(msg)
	require.NoError(t, err)
	assert.True(t, Verify(k.PublicKey(), msg, sig))
	assert.False(t, Verify(k.PublicKey(), []byte("other"), sig))
	assert.False(t, Verify([]byte{1, 2, 3}, msg, sig))

	again, err := k.Sign(msg)
	require.NoError(t, err)
	assert.Equal(t, sig, again, "signatures must be deterministic")

	_, err = Ed448FromSeed([]byte("short"))
	assert.Error(t, err)
}

func TestKeyFile(t *testing.T) {
	k, err := NewEd448()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "owner.key")
	require.NoError(t, SaveEd448(path, k))

	loaded, err := LoadEd448(path)
	require.NoError(t, err)
	assert.Equal(t, k.Address(), loaded.Address())
	assert.Equal(t, k.PublicKey(), loaded.PublicKey())

	_, err = LoadEd448(filepath.Join(t.TempDir(), "missing.key"))
	assert.Error(t, err)
}
