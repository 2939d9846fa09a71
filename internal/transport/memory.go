package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

var _ Volume = (*MemoryVolume)(nil)

// MemoryVolume is an in-memory volume backed by a billy memfs. A memory
// volume can be flagged remote so that cross-store code paths can run
// without a network.
type MemoryVolume struct {
	fs     billy.Filesystem
	id     string
	remote bool
}

// NewMemoryVolume returns an empty in-memory volume.
func NewMemoryVolume(id string, remote bool) *MemoryVolume {
	return &MemoryVolume{fs: memfs.New(), id: id, remote: remote}
}

func (v *MemoryVolume) ID() string   { return v.id }
func (v *MemoryVolume) Remote() bool { return v.remote }
func (*MemoryVolume) Close() error   { return nil }

// Filesystem exposes the underlying billy filesystem.
func (v *MemoryVolume) Filesystem() billy.Filesystem { return v.fs }

// WriteFile creates p (and its parents) with data.
func (v *MemoryVolume) WriteFile(p string, data []byte) error {
	if err := v.fs.MkdirAll(path.Dir(clean(p)), 0o755); err != nil {
		return err
	}
	return util.WriteFile(v.fs, clean(p), data, 0o644)
}

// MkdirAll creates directory p and its parents.
func (v *MemoryVolume) MkdirAll(p string) error {
	return v.fs.MkdirAll(clean(p), 0o755)
}

// ReadFile returns the content of p.
func (v *MemoryVolume) ReadFile(p string) ([]byte, error) {
	return util.ReadFile(v.fs, clean(p))
}

func (v *MemoryVolume) Stat(_ context.Context, p string) (Entry, error) {
	p = clean(p)
	if p == "/" {
		return Entry{Volume: v.id, Path: "/", IsDir: true}, nil
	}
	info, err := v.fs.Stat(p)
	if err != nil {
		return Entry{}, mapLocalErr(err)
	}
	return entryFromInfo(v.id, p, info), nil
}

func (v *MemoryVolume) ReadDir(_ context.Context, p string) ([]Entry, error) {
	p = clean(p)
	infos, err := v.fs.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", p, mapLocalErr(err))
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(v.id, path.Join(p, info.Name()), info))
	}
	return entries, nil
}

// Mkdir is exclusive: billy only offers MkdirAll, so occupancy is checked
// first.
func (v *MemoryVolume) Mkdir(_ context.Context, p string) error {
	p = clean(p)
	if _, err := v.fs.Stat(p); err == nil {
		return fmt.Errorf("mkdir %s: %w", p, ErrExists)
	}
	if _, err := v.fs.Stat(path.Dir(p)); err != nil {
		return mapLocalErr(err)
	}
	return v.fs.MkdirAll(p, 0o755)
}

func (v *MemoryVolume) CreateFile(_ context.Context, p string) error {
	f, err := v.fs.OpenFile(clean(p), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return mapLocalErr(err)
	}
	return f.Close()
}

func (v *MemoryVolume) OpenWrite(_ context.Context, p string) (io.WriteCloser, error) {
	f, err := v.fs.OpenFile(clean(p), os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, mapLocalErr(err)
	}
	return f, nil
}

func (v *MemoryVolume) OpenRead(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := v.fs.Open(clean(p))
	if err != nil {
		return nil, mapLocalErr(err)
	}
	return f, nil
}

func (v *MemoryVolume) Rename(_ context.Context, oldPath, newPath string) error {
	if _, err := v.fs.Stat(clean(newPath)); err == nil {
		return fmt.Errorf("rename to %s: %w", newPath, ErrExists)
	}
	if err := v.fs.Rename(clean(oldPath), clean(newPath)); err != nil {
		return mapLocalErr(err)
	}
	return nil
}

func (v *MemoryVolume) RemoveAll(_ context.Context, p string) error {
	p = clean(p)
	if _, err := v.fs.Stat(p); err != nil {
		return mapLocalErr(err)
	}
	return util.RemoveAll(v.fs, p)
}

func (v *MemoryVolume) Chtimes(_ context.Context, p string, mtime time.Time) error {
	ch, ok := v.fs.(billy.Change)
	if !ok {
		return ErrUnsupported
	}
	if err := ch.Chtimes(clean(p), mtime, mtime); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return mapLocalErr(err)
		}
		return err
	}
	return nil
}

func clean(p string) string { return path.Clean("/" + p) }
