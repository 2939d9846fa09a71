package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		raw     string
		glob    string
		dirOnly bool
	}{
		{"*.tmp", "**/*.tmp", false},
		{"/top.txt", "top.txt", false},
		{"a/b/*.txt", "a/b/*.txt", false},
		{"cache/", "**/cache", true},
		{"/cache/", "cache", true},
	}
	for _, tt := range tests {
		p, err := compilePattern(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.glob, p.glob, tt.raw)
		assert.Equal(t, tt.dirOnly, p.dirOnly, tt.raw)
		assert.Equal(t, tt.raw, p.String())
	}
}

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		raw   string
		path  string
		isDir bool
		want  bool
	}{
		{"*.tmp", "x.tmp", false, true},
		{"*.tmp", "a/b/x.tmp", false, true},
		{"*.tmp", "x.tmp.keep", false, false},
		{"**/*.go", "cmd/courier/main.go", false, true},
		{"/top.txt", "top.txt", false, true},
		{"/top.txt", "sub/top.txt", false, false},
		{"/top.txt", "/top.txt", false, true},
		{"a/b/*.txt", "a/b/c.txt", false, true},
		{"a/b/*.txt", "z/a/b/c.txt", false, false},
		{"cache/", "web/cache", true, true},
		{"cache/", "web/cache", false, false},
		{"v?.bin", "v1.bin", false, true},
		{"v?.bin", "v10.bin", false, false},
		{"v?.bin", "v/.bin", false, false},
		{"img[0-9].png", "shots/img4.png", false, true},
		{"img[0-9].png", "imgX.png", false, false},
	}
	for _, tt := range tests {
		p, err := compilePattern(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.match(tt.path, tt.isDir), "%s ~ %s", tt.raw, tt.path)
	}
}

func TestCompilePatternInvalid(t *testing.T) {
	for _, raw := range []string{"[oops", "", "/", "//"} {
		_, err := compilePattern(raw)
		assert.Error(t, err, raw)
	}
}
