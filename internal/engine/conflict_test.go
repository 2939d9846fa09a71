package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/courier/internal/transport"
)

var target = transport.Entry{Volume: "dst", Path: "/out", IsDir: true}

func occupied(names ...string) *mapProber {
	p := &mapProber{occupied: make(map[string]bool)}
	for _, n := range names {
		p.occupied[n] = true
	}
	return p
}

func TestResolve_FreeNameIsUnchanged(t *testing.T) {
	t.Parallel()
	r := NewResolver(occupied())
	for _, name := range []string{"report.txt", "dir", "a/b/c.tar.gz", "notes (3).md"} {
		for range 3 {
			got, err := r.Resolve(context.Background(), target, name)
			require.NoError(t, err)
			assert.Equal(t, name, got)
		}
	}
}

func TestResolve_Numbering(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		occupied []string
		desired  string
		want     string
	}{
		{"first collision", []string{"report.txt"}, "report.txt", "report (1).txt"},
		{"two collisions", []string{"report.txt", "report (1).txt"}, "report.txt", "report (2).txt"},
		{"no extension", []string{"dir"}, "dir", "dir (1)"},
		{"last dot splits", []string{"a.tar.gz"}, "a.tar.gz", "a.tar (1).gz"},
		{"leading dot is the name", []string{".bashrc"}, ".bashrc", ".bashrc (1)"},
		{"numbered name continues", []string{"notes (3).md"}, "notes (3).md", "notes (4).md"},
		{"nested path renumbers last segment", []string{"d/x.txt"}, "d/x.txt", "d/x (1).txt"},
		{"dot in directory ignored", []string{"v1.2/readme"}, "v1.2/readme", "v1.2/readme (1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewResolver(occupied(tt.occupied...)).Resolve(context.Background(), target, tt.desired)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_ExhaustionReportsFirstCollision(t *testing.T) {
	t.Parallel()
	names := []string{"report.txt"}
	for i := 1; i < MaxProbes; i++ {
		names = append(names, fmt.Sprintf("report (%d).txt", i))
	}
	p := occupied(names...)

	_, err := NewResolver(p).Resolve(context.Background(), target, "report.txt")
	require.ErrorIs(t, err, ErrTargetExists)

	var te *TargetExistsError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "/out/report.txt", te.Entry.Path)
	assert.Len(t, p.probes, MaxProbes)
}

func TestResolve_NumberedStartProbesTenFromN(t *testing.T) {
	t.Parallel()
	var names []string
	for i := 5; i < 5+MaxProbes; i++ {
		names = append(names, fmt.Sprintf("x (%d)", i))
	}
	_, err := NewResolver(occupied(names...)).Resolve(context.Background(), target, "x (5)")
	var te *TargetExistsError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "/out/x (5)", te.Entry.Path)
}

func TestResolve_ProbeErrorIsFilesystemError(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	p := &mapProber{err: boom}

	_, err := NewResolver(p).Resolve(context.Background(), target, "a.txt")
	require.ErrorIs(t, err, ErrFilesystem)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, p.probes, 1)
}

func TestResolve_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver(occupied()).Resolve(ctx, target, "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_EmptyName(t *testing.T) {
	t.Parallel()
	_, err := NewResolver(occupied()).Resolve(context.Background(), target, "/")
	assert.Error(t, err)
}

func TestArchiveName(t *testing.T) {
	t.Parallel()
	src := func(paths ...string) []transport.Entry {
		out := make([]transport.Entry, len(paths))
		for i, p := range paths {
			out[i] = transport.Entry{Volume: "src", Path: p}
		}
		return out
	}
	tests := []struct {
		name    string
		sources []transport.Entry
		want    string
	}{
		{"single file", src("/a/report.txt"), "report.zip"},
		{"single directory", src("/a/photos"), "photos.zip"},
		{"last extension only", src("/a/a.tar.gz"), "a.tar.zip"},
		{"leading dot kept", src("/a/.bashrc"), ".bashrc.zip"},
		{"trailing dot", src("/a/notes."), "notes.zip"},
		{"several entries", src("/a/x", "/a/y"), "Archive.zip"},
		{"empty selection", nil, "Archive.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, archiveName(tt.sources))
		})
	}
}
