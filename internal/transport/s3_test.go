package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestS3Keys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path   string
		object string
		dir    string
	}{
		{"/", "", ""},
		{"", "", ""},
		{"/a", "a", "a/"},
		{"a/b", "a/b", "a/b/"},
		{"/a/b/", "a/b", "a/b/"},
		{"/a/../c", "c", "c/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.object, objectKey(tt.path), "objectKey(%q)", tt.path)
		assert.Equal(t, tt.dir, dirKey(tt.path), "dirKey(%q)", tt.path)
	}
}
