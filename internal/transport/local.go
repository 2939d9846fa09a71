package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mholt/archiver/v3"
	"golang.org/x/sys/unix"
)

// Compile-time interface checks.
var (
	_ Volume   = (*LocalVolume)(nil)
	_ Archiver = (*LocalVolume)(nil)
)

// LocalVolume is a volume backed by a directory on the local filesystem.
type LocalVolume struct {
	id   string
	root string
}

// NewLocalVolume creates a local volume rooted at root.
func NewLocalVolume(id, root string) *LocalVolume {
	return &LocalVolume{id: id, root: filepath.Clean(root)}
}

func (v *LocalVolume) ID() string   { return v.id }
func (*LocalVolume) Remote() bool   { return false }
func (*LocalVolume) Close() error   { return nil }
func (v *LocalVolume) Root() string { return v.root }

// AbsPath returns the absolute local path for a volume path.
func (v *LocalVolume) AbsPath(p string) string {
	return filepath.Join(v.root, filepath.FromSlash(path.Clean("/"+p)))
}

// VolumePath converts an absolute local path into a volume path. ok is false
// when abs is outside the volume root.
func (v *LocalVolume) VolumePath(abs string) (string, bool) {
	rel, err := filepath.Rel(v.root, filepath.Clean(abs))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "/", true
	}
	return "/" + filepath.ToSlash(rel), true
}

func (v *LocalVolume) Stat(_ context.Context, p string) (Entry, error) {
	info, err := os.Stat(v.AbsPath(p))
	if err != nil {
		return Entry{}, mapLocalErr(err)
	}
	return entryFromInfo(v.id, path.Clean("/"+p), info), nil
}

func (v *LocalVolume) ReadDir(_ context.Context, p string) ([]Entry, error) {
	absPath := v.AbsPath(p)
	dirents, err := os.ReadDir(absPath)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", absPath, mapLocalErr(err))
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			continue // removed since listing
		}
		entries = append(entries, entryFromInfo(v.id, path.Join("/", p, d.Name()), info))
	}
	return entries, nil
}

func (v *LocalVolume) Mkdir(_ context.Context, p string) error {
	if err := os.Mkdir(v.AbsPath(p), 0o755); err != nil {
		return mapLocalErr(err)
	}
	return nil
}

func (v *LocalVolume) CreateFile(_ context.Context, p string) error {
	f, err := os.OpenFile(v.AbsPath(p), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return mapLocalErr(err)
	}
	return f.Close()
}

// OpenWrite writes into a uuid-named temp file next to p and renames it over
// p on Close. Temp files are tracked so an interrupted run can clean up.
func (v *LocalVolume) OpenWrite(_ context.Context, p string) (io.WriteCloser, error) {
	absPath := v.AbsPath(p)
	if _, err := os.Stat(absPath); err != nil {
		return nil, mapLocalErr(err)
	}
	tmpPath := filepath.Join(
		filepath.Dir(absPath),
		fmt.Sprintf(".%s.%s.courier-tmp", filepath.Base(absPath), uuid.New().String()[:8]),
	)
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp %s: %w", tmpPath, err)
	}
	RegisterTmp(tmpPath)
	return &localWriteFile{File: f, tmpPath: tmpPath, finalPath: absPath}, nil
}

func (v *LocalVolume) OpenRead(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := os.Open(v.AbsPath(p))
	if err != nil {
		return nil, mapLocalErr(err)
	}
	return f, nil
}

func (v *LocalVolume) Rename(_ context.Context, oldPath, newPath string) error {
	newAbs := v.AbsPath(newPath)
	if _, err := os.Lstat(newAbs); err == nil {
		return fmt.Errorf("rename to %s: %w", newPath, ErrExists)
	}
	if err := os.Rename(v.AbsPath(oldPath), newAbs); err != nil {
		return mapLocalErr(err)
	}
	return nil
}

func (v *LocalVolume) RemoveAll(_ context.Context, p string) error {
	absPath := v.AbsPath(p)
	if _, err := os.Lstat(absPath); err != nil {
		return mapLocalErr(err)
	}
	return os.RemoveAll(absPath)
}

// Chtimes sets mtime and leaves atime untouched.
func (v *LocalVolume) Chtimes(_ context.Context, p string, mtime time.Time) error {
	times := []unix.Timespec{
		{Sec: 0, Nsec: unix.UTIME_OMIT},
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, v.AbsPath(p), times, 0); err != nil {
		return fmt.Errorf("utimensat %s: %w", p, mapLocalErr(err))
	}
	return nil
}

// Archive builds a zip with archiver's native writer. Every archived path
// must be a direct child of baseDir, since archiver stores sources by base
// name; other layouts return ErrUnsupported and the caller falls back.
func (v *LocalVolume) Archive(_ context.Context, baseDir string, paths []string, dest string) error {
	sources := make([]string, 0, len(paths))
	for _, p := range paths {
		if path.Dir(path.Clean("/"+p)) != path.Clean("/"+baseDir) {
			return ErrUnsupported
		}
		sources = append(sources, v.AbsPath(p))
	}

	destAbs := v.AbsPath(dest)
	if _, err := os.Lstat(destAbs); err == nil {
		return fmt.Errorf("archive %s: %w", dest, ErrExists)
	}

	z := archiver.NewZip()
	z.OverwriteExisting = false
	z.MkdirAll = false
	if err := z.Archive(sources, destAbs); err != nil {
		return fmt.Errorf("zip %s: %w", dest, err)
	}
	return nil
}

// localWriteFile wraps the temp *os.File backing OpenWrite.
type localWriteFile struct {
	*os.File
	tmpPath   string
	finalPath string
}

func (f *localWriteFile) Close() error {
	defer DeregisterTmp(f.tmpPath)
	if err := f.File.Close(); err != nil {
		_ = os.Remove(f.tmpPath)
		return err
	}
	if err := os.Rename(f.tmpPath, f.finalPath); err != nil {
		_ = os.Remove(f.tmpPath)
		return fmt.Errorf("rename temp to %s: %w", f.finalPath, err)
	}
	return nil
}

// Abort discards everything written so far.
func (f *localWriteFile) Abort() error {
	defer DeregisterTmp(f.tmpPath)
	_ = f.File.Close()
	return os.Remove(f.tmpPath)
}

func entryFromInfo(volume, p string, info fs.FileInfo) Entry {
	return Entry{
		Volume:  volume,
		Path:    p,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
}

// mapLocalErr translates fs errors into the package sentinels while keeping
// the original error in the chain.
func mapLocalErr(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %w", ErrExists, err)
	default:
		return err
	}
}
