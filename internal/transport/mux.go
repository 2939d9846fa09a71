package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"golang.org/x/time/rate"
)

// Mux routes entry-level filesystem calls to the volume named by each
// entry. It is the filesystem collaborator the transfer engine runs against.
type Mux struct {
	mu      sync.RWMutex
	volumes map[string]Volume
	limiter *rate.Limiter
	tmpDir  string
}

// MuxOption configures a Mux.
type MuxOption func(*Mux)

// WithLimiter throttles remote transfers through limiter.
func WithLimiter(limiter *rate.Limiter) MuxOption {
	return func(m *Mux) { m.limiter = limiter }
}

// WithSpoolDir sets the local directory used to stage remote-to-remote
// transfers. Defaults to os.TempDir().
func WithSpoolDir(dir string) MuxOption {
	return func(m *Mux) { m.tmpDir = dir }
}

// NewMux creates a Mux serving the given volumes.
func NewMux(volumes []Volume, opts ...MuxOption) *Mux {
	m := &Mux{volumes: make(map[string]Volume, len(volumes))}
	for _, v := range volumes {
		m.volumes[v.ID()] = v
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a volume, replacing any volume with the same id.
func (m *Mux) Register(v Volume) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[v.ID()] = v
}

// Volume returns the volume with the given id.
//
//nolint:ireturn // returns the registered implementation
func (m *Mux) Volume(id string) (Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.volumes[id]
	if !ok {
		return nil, fmt.Errorf("unknown volume %q", id)
	}
	return v, nil
}

// LocalEntry maps an absolute local path onto the registered local volume
// with the longest matching root.
func (m *Mux) LocalEntry(ctx context.Context, abs string) (Entry, error) {
	m.mu.RLock()
	var best *LocalVolume
	var bestPath string
	for _, v := range m.volumes {
		lv, ok := v.(*LocalVolume)
		if !ok {
			continue
		}
		p, ok := lv.VolumePath(abs)
		if !ok {
			continue
		}
		if best == nil || len(lv.Root()) > len(best.Root()) {
			best, bestPath = lv, p
		}
	}
	m.mu.RUnlock()

	if best == nil {
		return Entry{}, fmt.Errorf("no local volume contains %s", abs)
	}
	return best.Stat(ctx, bestPath)
}

// IsRemote reports whether e lives on a network-backed volume.
func (m *Mux) IsRemote(e Entry) bool {
	v, err := m.Volume(e.Volume)
	return err == nil && v.Remote()
}

// Close closes every registered volume.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, v := range m.volumes {
		if err := v.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close volume %s: %w", v.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Mux) Exists(ctx context.Context, dir Entry, rel string) (Entry, error) {
	return m.Stat(ctx, dir.Child(rel))
}

func (m *Mux) Stat(ctx context.Context, e Entry) (Entry, error) {
	v, err := m.Volume(e.Volume)
	if err != nil {
		return Entry{}, err
	}
	return v.Stat(ctx, e.Path)
}

func (m *Mux) ReadDir(ctx context.Context, dir Entry) ([]Entry, error) {
	v, err := m.Volume(dir.Volume)
	if err != nil {
		return nil, err
	}
	return v.ReadDir(ctx, dir.Path)
}

func (m *Mux) CreateDirectory(ctx context.Context, dir Entry, rel string) (Entry, error) {
	target := dir.Child(rel)
	v, err := m.Volume(target.Volume)
	if err != nil {
		return Entry{}, err
	}
	if err := v.Mkdir(ctx, target.Path); err != nil {
		return Entry{}, err
	}
	target.IsDir = true
	target.ModTime = time.Now()
	return target, nil
}

func (m *Mux) CreateFile(ctx context.Context, dir Entry, rel string) (Entry, error) {
	target := dir.Child(rel)
	v, err := m.Volume(target.Volume)
	if err != nil {
		return Entry{}, err
	}
	if err := v.CreateFile(ctx, target.Path); err != nil {
		return Entry{}, err
	}
	target.ModTime = time.Now()
	return target, nil
}

func (m *Mux) OpenForWrite(ctx context.Context, e Entry) (io.WriteCloser, error) {
	v, err := m.Volume(e.Volume)
	if err != nil {
		return nil, err
	}
	return v.OpenWrite(ctx, e.Path)
}

func (m *Mux) OpenRead(ctx context.Context, e Entry) (io.ReadCloser, error) {
	v, err := m.Volume(e.Volume)
	if err != nil {
		return nil, err
	}
	return v.OpenRead(ctx, e.Path)
}

// Move renames e into destDir under name. Both must be on the same volume.
func (m *Mux) Move(ctx context.Context, e, destDir Entry, name string) (Entry, error) {
	if e.Volume != destDir.Volume {
		return Entry{}, fmt.Errorf("move %s to %s: cross-volume move", e.URL(), destDir.URL())
	}
	v, err := m.Volume(e.Volume)
	if err != nil {
		return Entry{}, err
	}
	target := destDir.Child(name)
	if err := v.Rename(ctx, e.Path, target.Path); err != nil {
		return Entry{}, err
	}
	return v.Stat(ctx, target.Path)
}

func (m *Mux) Remove(ctx context.Context, e Entry) error {
	v, err := m.Volume(e.Volume)
	if err != nil {
		return err
	}
	return v.RemoveAll(ctx, e.Path)
}

func (m *Mux) SetModifiedTime(ctx context.Context, e Entry, t time.Time) error {
	v, err := m.Volume(e.Volume)
	if err != nil {
		return err
	}
	return v.Chtimes(ctx, e.Path, t)
}

// RemoteTransfer copies file src into destDir/name when at least one side is
// remote. The destination is created exclusively. progress receives the
// cumulative bytes of each leg: a remote source reports LegDownload, a remote
// destination LegUpload; remote-to-remote transfers are staged through a
// local spool file and report both legs in turn.
func (m *Mux) RemoteTransfer(
	ctx context.Context,
	src, destDir Entry,
	name string,
	progress func(TransferProgress),
) (Entry, error) {
	sv, err := m.Volume(src.Volume)
	if err != nil {
		return Entry{}, err
	}
	dv, err := m.Volume(destDir.Volume)
	if err != nil {
		return Entry{}, err
	}
	if progress == nil {
		progress = func(TransferProgress) {}
	}
	target := destDir.Child(name)

	if err := dv.CreateFile(ctx, target.Path); err != nil {
		return Entry{}, err
	}

	if copier, ok := sv.(Copier); ok && sv == dv {
		if err := copier.Copy(ctx, src.Path, target.Path); err != nil {
			return Entry{}, err
		}
		progress(TransferProgress{Leg: LegDownload, Processed: src.Size})
		progress(TransferProgress{Leg: LegUpload, Processed: src.Size})
		return dv.Stat(ctx, target.Path)
	}

	switch {
	case sv.Remote() && dv.Remote():
		err = m.spoolTransfer(ctx, sv, dv, src.Path, target.Path, progress)
	case sv.Remote():
		err = m.pipe(ctx, sv, dv, src.Path, target.Path, LegDownload, progress)
	default:
		err = m.pipe(ctx, sv, dv, src.Path, target.Path, LegUpload, progress)
	}
	if err != nil {
		return Entry{}, err
	}
	return dv.Stat(ctx, target.Path)
}

func (m *Mux) pipe(
	ctx context.Context,
	sv, dv Volume,
	srcPath, dstPath string,
	leg Leg,
	progress func(TransferProgress),
) error {
	r, err := sv.OpenRead(ctx, srcPath)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := dv.OpenWrite(ctx, dstPath)
	if err != nil {
		return err
	}
	if _, err := CopyStream(ctx, w, r, m.limiter, func(total int64) {
		progress(TransferProgress{Leg: leg, Processed: total})
	}); err != nil {
		_ = Abort(w)
		return fmt.Errorf("%s %s: %w", leg, srcPath, err)
	}
	return w.Close()
}

func (m *Mux) spoolTransfer(
	ctx context.Context,
	sv, dv Volume,
	srcPath, dstPath string,
	progress func(TransferProgress),
) error {
	dir := m.tmpDir
	if dir == "" {
		dir = os.TempDir()
	}
	spoolPath := filepath.Join(dir, ".courier-spool-"+uuid.NewString())
	spool, err := os.OpenFile(spoolPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create spool: %w", err)
	}
	RegisterTmp(spoolPath)
	defer func() {
		spool.Close()
		_ = os.Remove(spoolPath)
		DeregisterTmp(spoolPath)
	}()

	r, err := sv.OpenRead(ctx, srcPath)
	if err != nil {
		return err
	}
	_, err = CopyStream(ctx, spool, r, m.limiter, func(total int64) {
		progress(TransferProgress{Leg: LegDownload, Processed: total})
	})
	r.Close()
	if err != nil {
		return fmt.Errorf("download %s: %w", srcPath, err)
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool: %w", err)
	}
	w, err := dv.OpenWrite(ctx, dstPath)
	if err != nil {
		return err
	}
	if _, err := CopyStream(ctx, w, spool, m.limiter, func(total int64) {
		progress(TransferProgress{Leg: LegUpload, Processed: total})
	}); err != nil {
		_ = Abort(w)
		return fmt.Errorf("upload %s: %w", dstPath, err)
	}
	return w.Close()
}

// CreateArchive writes a zip named destName into sourceDir containing
// entries (stored relative to sourceDir). Volumes with a native archiver are
// used when they can handle the layout; otherwise the archive is streamed
// through the volume's writer.
func (m *Mux) CreateArchive(ctx context.Context, sourceDir Entry, entries []Entry, destName string) (Entry, error) {
	v, err := m.Volume(sourceDir.Volume)
	if err != nil {
		return Entry{}, err
	}
	dest := sourceDir.Child(destName)

	if a, ok := v.(Archiver); ok {
		paths := make([]string, len(entries))
		for i, e := range entries {
			paths[i] = e.Path
		}
		err := a.Archive(ctx, sourceDir.Path, paths, dest.Path)
		if err == nil {
			return v.Stat(ctx, dest.Path)
		}
		if !errors.Is(err, ErrUnsupported) {
			return Entry{}, err
		}
	}

	if err := v.CreateFile(ctx, dest.Path); err != nil {
		return Entry{}, err
	}
	w, err := v.OpenWrite(ctx, dest.Path)
	if err != nil {
		return Entry{}, err
	}
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := m.addToZip(ctx, v, zw, sourceDir.Path, e); err != nil {
			_ = zw.Close()
			_ = Abort(w)
			_ = v.RemoveAll(ctx, dest.Path)
			return Entry{}, err
		}
	}
	if err := zw.Close(); err != nil {
		_ = Abort(w)
		return Entry{}, fmt.Errorf("finish zip %s: %w", destName, err)
	}
	if err := w.Close(); err != nil {
		return Entry{}, err
	}
	return v.Stat(ctx, dest.Path)
}

func (m *Mux) addToZip(ctx context.Context, v Volume, zw *zip.Writer, base string, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := strings.TrimPrefix(strings.TrimPrefix(e.Path, base), "/")
	if e.IsDir {
		if _, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name + "/",
			Method:   zip.Store,
			Modified: e.ModTime,
		}); err != nil {
			return fmt.Errorf("zip %s: %w", name, err)
		}
		children, err := v.ReadDir(ctx, e.Path)
		if err != nil {
			return err
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Path < children[j].Path })
		for _, c := range children {
			if err := m.addToZip(ctx, v, zw, base, c); err != nil {
				return err
			}
		}
		return nil
	}

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: e.ModTime,
	})
	if err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	r, err := v.OpenRead(ctx, e.Path)
	if err != nil {
		return err
	}
	defer r.Close()
	if _, err := CopyStream(ctx, fw, r, nil, nil); err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	return nil
}
