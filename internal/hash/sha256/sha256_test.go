package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashUnkeyed(t *testing.T) {
	t.Parallel()

	h := New()
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", h.Hash([]byte("hello world")))
	assert.Equal(t, h.Hash([]byte("x")), NewKeyed(nil).Hash([]byte("x")))
}

func TestHashKeyed(t *testing.T) {
	t.Parallel()

	a := NewKeyed([]byte("one"))
	b := NewKeyed([]byte("two"))
	msg := []byte("42:secret")

	assert.Equal(t, a.Hash(msg), a.Hash(msg))
	assert.NotEqual(t, a.Hash(msg), b.Hash(msg))
	assert.NotEqual(t, New().Hash(msg), a.Hash(msg))
	assert.Len(t, a.Hash(msg), 64)
}

func TestETagIgnoresKey(t *testing.T) {
	t.Parallel()

	body := []byte("hello world")
	want := `"b94d27b9934d3e08a52e52d7da7dabfa"`
	assert.Equal(t, want, New().ETag(body))
	assert.Equal(t, want, NewKeyed([]byte("k")).ETag(body))
}

func TestEqual(t *testing.T) {
	t.Parallel()

	h := New()
	assert.True(t, h.Equal("abc", "abc"))
	assert.False(t, h.Equal("abc", "abd"))
	assert.False(t, h.Equal("abc", "ab"))
}
