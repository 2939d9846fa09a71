package engine

import (
	"context"
	"io"
	"time"

	"github.com/bamsammich/courier/internal/transport"
)

var _ FileSystem = (*transport.Mux)(nil)

// Prober answers existence checks for conflict resolution. Exists returns
// an error matching transport.ErrNotFound when nothing is at dir/rel.
type Prober interface {
	Exists(ctx context.Context, dir transport.Entry, rel string) (transport.Entry, error)
}

// Remover deletes entries recursively.
type Remover interface {
	Remove(ctx context.Context, e transport.Entry) error
}

// FileSystem is everything the manager needs from the storage layer.
// Creates are exclusive and fail with transport.ErrExists when the target
// is occupied.
type FileSystem interface {
	Prober
	Remover

	CreateDirectory(ctx context.Context, dir transport.Entry, rel string) (transport.Entry, error)
	CreateFile(ctx context.Context, dir transport.Entry, rel string) (transport.Entry, error)

	// OpenForWrite opens an existing file; Close finalizes the content.
	OpenForWrite(ctx context.Context, e transport.Entry) (io.WriteCloser, error)
	OpenRead(ctx context.Context, e transport.Entry) (io.ReadCloser, error)

	// Move renames e into destDir on the same volume.
	Move(ctx context.Context, e, destDir transport.Entry, name string) (transport.Entry, error)

	// RemoteTransfer copies a file when either side is remote, reporting
	// cumulative bytes per leg.
	RemoteTransfer(
		ctx context.Context,
		src, destDir transport.Entry,
		name string,
		progress func(transport.TransferProgress),
	) (transport.Entry, error)

	SetModifiedTime(ctx context.Context, e transport.Entry, t time.Time) error
	Stat(ctx context.Context, e transport.Entry) (transport.Entry, error)
	ReadDir(ctx context.Context, dir transport.Entry) ([]transport.Entry, error)

	// CreateArchive writes destName into sourceDir as a zip of entries.
	CreateArchive(
		ctx context.Context,
		sourceDir transport.Entry,
		entries []transport.Entry,
		destName string,
	) (transport.Entry, error)

	IsRemote(e transport.Entry) bool
}

// isMovable reports whether entries can be renamed from src to dst rather
// than copied and deleted.
func isMovable(src, dst transport.Entry) bool {
	return src.Volume == dst.Volume
}
