package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	h := ContentHash([]byte("hello"))
	assert.Equal(t, hashAlgo+":", h[:len(hashAlgo)+1])
	assert.Len(t, h, len(hashAlgo)+1+64)

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, ContentHash([]byte("hello")), ContentHash([]byte("hello")))
	})

	t.Run("sensitive to input", func(t *testing.T) {
		assert.NotEqual(t, ContentHash([]byte("hello")), ContentHash([]byte("world")))
	})
}

func TestContentHashWithAlgo(t *testing.T) {
	blake, err := ContentHashWithAlgo([]byte("x"), "blake3")
	require.NoError(t, err)
	assert.Equal(t, ContentHash([]byte("x")), blake)

	sha, err := ContentHashWithAlgo([]byte("x"), "sha256")
	require.NoError(t, err)
	assert.Contains(t, sha, "sha256:")

	_, err = ContentHashWithAlgo([]byte("x"), "md5")
	require.Error(t, err)
}

func TestProductIDHash(t *testing.T) {
	h1, err := ProductIDHash("raw_obs", map[string]any{"obsnum": 12345, "master": "lmt"})
	require.NoError(t, err)

	h2, err := ProductIDHash("raw_obs", map[string]any{"master": "lmt", "obsnum": 12345})
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "key order must not affect the hash")
	assert.Len(t, h1, 64)

	h3, err := ProductIDHash("raw_obs", map[string]any{"obsnum": 99999, "master": "lmt"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestParamsHash(t *testing.T) {
	h, err := ParamsHash(map[string]any{"a": 1, "b": []any{"x", "y"}})
	require.NoError(t, err)
	assert.Len(t, h, 32)
}

func TestInputSetHash(t *testing.T) {
	a, err := ProductIDHash("raw_obs", map[string]any{"obsnum": 1})
	require.NoError(t, err)
	_ = a

	h1 := InputSetHash([]string{"c", "a", "b"})
	h2 := InputSetHash([]string{"a", "b", "c"})
	assert.Equal(t, h1, h2, "order independent")
	assert.Len(t, h1, 32)
}
