package transport

import (
	"context"
	"errors"
	"io"
	"path"
	"time"
)

var (
	// ErrNotFound is returned when no entry exists at the requested path.
	ErrNotFound = errors.New("entry not found")
	// ErrExists is returned by exclusive create and rename operations when
	// the destination is already occupied.
	ErrExists = errors.New("entry already exists")
	// ErrUnsupported is returned by volumes that cannot perform an operation
	// (e.g. setting timestamps on object storage).
	ErrUnsupported = errors.New("operation not supported by volume")
	// ErrAborted is reported by writers discarded through Abort.
	ErrAborted = errors.New("write aborted")
)

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Abort discards a writer returned by OpenWrite without publishing what was
// written. Writers that cannot discard are closed instead.
func Abort(w io.WriteCloser) error {
	if a, ok := w.(interface{ Abort() error }); ok {
		return a.Abort()
	}
	return w.Close()
}

// Entry is a file or directory reference within a volume.
type Entry struct {
	ModTime time.Time
	Volume  string // volume id
	Path    string // slash-separated, rooted at the volume ("/a/b.txt")
	Size    int64
	IsDir   bool
}

// Name returns the final path element.
func (e Entry) Name() string { return path.Base(e.Path) }

// URL returns a display form of the entry: "<volume>:<path>".
func (e Entry) URL() string { return e.Volume + ":" + e.Path }

// Parent returns the directory containing e.
func (e Entry) Parent() Entry {
	return Entry{Volume: e.Volume, Path: path.Dir(e.Path), IsDir: true}
}

// Child returns an entry for rel below e. The result carries no metadata.
func (e Entry) Child(rel string) Entry {
	return Entry{Volume: e.Volume, Path: path.Join(e.Path, rel)}
}

// Leg identifies one half of a cross-volume transfer.
type Leg int

const (
	// LegDownload is the read side: bytes pulled from a remote source.
	LegDownload Leg = iota
	// LegUpload is the write side: bytes pushed to a remote destination.
	LegUpload
)

func (l Leg) String() string {
	if l == LegUpload {
		return "upload"
	}
	return "download"
}

// TransferProgress reports cumulative bytes processed on one leg.
type TransferProgress struct {
	Leg       Leg
	Processed int64
}

// Volume is a single storage root. Paths are volume-relative and
// slash-separated.
type Volume interface {
	// ID returns the volume id. Entries carry it to route calls back here.
	ID() string

	// Remote reports whether operations go over the network.
	Remote() bool

	// Stat returns metadata for p, or ErrNotFound.
	Stat(ctx context.Context, p string) (Entry, error)

	// ReadDir lists the immediate children of directory p.
	ReadDir(ctx context.Context, p string) ([]Entry, error)

	// Mkdir creates directory p. Fails with ErrExists if p is occupied.
	Mkdir(ctx context.Context, p string) error

	// CreateFile creates an empty file at p. Fails with ErrExists if p is
	// occupied.
	CreateFile(ctx context.Context, p string) error

	// OpenWrite opens the existing file p for writing, truncating it.
	// Content becomes visible at p when the writer is closed.
	OpenWrite(ctx context.Context, p string) (io.WriteCloser, error)

	// OpenRead opens file p for reading.
	OpenRead(ctx context.Context, p string) (io.ReadCloser, error)

	// Rename moves oldPath to newPath within the volume. Fails with
	// ErrExists if newPath is occupied.
	Rename(ctx context.Context, oldPath, newPath string) error

	// RemoveAll deletes p and, for directories, everything below it.
	RemoveAll(ctx context.Context, p string) error

	// Chtimes sets the modification time of p.
	Chtimes(ctx context.Context, p string, mtime time.Time) error

	// Close releases resources held by the volume.
	Close() error
}

// Archiver is implemented by volumes that can build a zip archive natively.
// paths are volume paths of the archived entries; they are stored relative
// to baseDir.
type Archiver interface {
	Archive(ctx context.Context, baseDir string, paths []string, dest string) error
}

// Copier is implemented by volumes that can copy a file without moving bytes
// through the client (server-side copy).
type Copier interface {
	Copy(ctx context.Context, src, dst string) error
}
