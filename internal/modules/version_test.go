package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.2", "1.10", -1},
		{"2.0", "1.99", 1},
		{"v1.3", "1.2", 1},
		{"1.2-beta", "1.2", -1},
		{"1.2", "1.2-rc1", 1},
		{"1.2-alpha", "1.2-beta", -1},
		{"", "0.1", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
		assert.Equal(t, -tt.want, CompareVersions(tt.b, tt.a), "%s vs %s", tt.b, tt.a)
	}
}

func TestParseDefine(t *testing.T) {
	t.Parallel()
	d, err := ParseDefine([]byte("name: Gallery\nversion: \"1.0\"\nsettings:\n  - key: cols\n    default: \"3\"\n"))
	assert.NoError(t, err)
	assert.Equal(t, TypePlugin, d.Type)
	assert.Equal(t, "3", d.Settings[0].Default)

	_, err = ParseDefine([]byte("name: X\n"))
	assert.ErrorIs(t, err, ErrInvalidDefine)
	_, err = ParseDefine([]byte("name: X\nversion: 1\ntype: widget\n"))
	assert.ErrorIs(t, err, ErrInvalidDefine)
	_, err = ParseDefine([]byte("name: X\nversion: 1\nsettings:\n  - key: a\n  - key: a\n"))
	assert.ErrorIs(t, err, ErrInvalidDefine)
}
