package engine

import (
	"context"
	"errors"
	"log/slog"
	"path"

	"github.com/bamsammich/courier/internal/event"
	"github.com/bamsammich/courier/internal/transport"
)

// step processes one entry of t. done is true once t is drained and its
// completion work has run.
func (m *Manager) step(ctx context.Context, t *Task) (done bool, err error) {
	if t.Mode == ModeArchive {
		return true, m.runArchive(ctx, t)
	}

	m.mu.Lock()
	entry, ok := t.nextEntry()
	m.mu.Unlock()
	if !ok {
		m.finishTask(ctx, t)
		return true, nil
	}

	if err := m.processEntry(ctx, t, entry); err != nil {
		return false, err
	}

	m.mu.Lock()
	err = t.completeEntry(entry)
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	m.emitStatus(event.Progress)
	return false, nil
}

// processEntry runs the filesystem work for one entry: locate it under the
// source root, remap it through earlier directory renames, pick a free
// target name, then move, create or copy.
func (m *Manager) processEntry(ctx context.Context, t *Task, entry transport.Entry) error {
	rel, err := t.relPath(entry)
	if err != nil {
		return err
	}
	desired := t.applyRenames(rel)
	resolved, err := m.resolver.Resolve(ctx, t.TargetRoot, desired)
	if err != nil {
		return err
	}
	if resolved != desired {
		m.collector.AddRenamed(1)
	}

	switch {
	case t.Mode == ModeMove:
		return m.moveEntry(ctx, t, entry, resolved)
	case entry.IsDir:
		return m.createDir(ctx, t, entry, rel, desired, resolved)
	case m.fs.IsRemote(entry) || m.fs.IsRemote(t.TargetRoot):
		return m.remoteCopy(ctx, t, entry, resolved)
	default:
		return m.localCopy(ctx, t, entry, resolved)
	}
}

func (m *Manager) moveEntry(ctx context.Context, t *Task, entry transport.Entry, resolved string) error {
	destDir := t.TargetRoot.Child(path.Dir(resolved))
	moved, err := m.fs.Move(ctx, entry, destDir, path.Base(resolved))
	if err != nil {
		return fsError("move", entry, err)
	}
	m.collector.AddItemsMoved(1)
	m.emit(event.Event{Type: event.Moved, TaskID: t.ID, Path: moved.URL(), Source: entry.URL()})
	return nil
}

func (m *Manager) createDir(ctx context.Context, t *Task, entry transport.Entry, rel, desired, resolved string) error {
	created, err := m.fs.CreateDirectory(ctx, t.TargetRoot, resolved)
	if err != nil {
		return fsError("mkdir", t.TargetRoot.Child(resolved), err)
	}
	if resolved != desired {
		m.mu.Lock()
		t.addRename(rel, resolved)
		m.mu.Unlock()
	}
	m.collector.AddDirsCreated(1)
	m.emit(event.Event{Type: event.Copied, TaskID: t.ID, Path: created.URL(), Source: entry.URL()})
	return nil
}

// localCopy streams a file between non-remote volumes.
func (m *Manager) localCopy(ctx context.Context, t *Task, entry transport.Entry, resolved string) error {
	dest, err := m.fs.CreateFile(ctx, t.TargetRoot, resolved)
	if err != nil {
		return fsError("create", t.TargetRoot.Child(resolved), err)
	}

	if err := m.streamFile(ctx, t, entry, dest); err != nil {
		m.discard(ctx, dest)
		return err
	}

	m.stampModTime(ctx, entry, dest)
	if m.cfg.Verify {
		if err := m.verify(ctx, entry, dest); err != nil {
			return err
		}
	}
	m.collector.AddItemsCopied(1)
	m.emit(event.Event{Type: event.Copied, TaskID: t.ID, Path: dest.URL(), Source: entry.URL()})
	return nil
}

func (m *Manager) streamFile(ctx context.Context, t *Task, src, dest transport.Entry) error {
	w, err := m.fs.OpenForWrite(ctx, dest)
	if err != nil {
		return fsError("open", dest, err)
	}
	r, err := m.fs.OpenRead(ctx, src)
	if err != nil {
		_ = transport.Abort(w)
		return fsError("open", src, err)
	}
	defer r.Close()

	var reported int64
	_, err = transport.CopyStream(ctx, w, r, m.cfg.Limiter, func(total int64) {
		m.mu.Lock()
		t.progress(total)
		m.mu.Unlock()
		m.collector.AddBytesCopied(total - reported)
		reported = total
		m.progressTick.Do(func() { m.emitStatus(event.Progress) })
	})
	if err != nil {
		_ = transport.Abort(w)
		return fsError("copy", src, err)
	}
	if err := w.Close(); err != nil {
		return fsError("write", dest, err)
	}
	return nil
}

// remoteCopy hands the file to the store-native transfer and folds its
// per-leg progress into the task.
func (m *Manager) remoteCopy(ctx context.Context, t *Task, entry transport.Entry, resolved string) error {
	meter := newLegMeter(m.fs.IsRemote(entry) && m.fs.IsRemote(t.TargetRoot))
	destDir := t.TargetRoot.Child(path.Dir(resolved))

	var reported int64
	dest, err := m.fs.RemoteTransfer(ctx, entry, destDir, path.Base(resolved),
		func(p transport.TransferProgress) {
			v := meter.update(p)
			m.mu.Lock()
			t.progress(v)
			m.mu.Unlock()
			if v > reported {
				m.collector.AddBytesCopied(v - reported)
				reported = v
			}
			m.progressTick.Do(func() { m.emitStatus(event.Progress) })
		})
	if err != nil {
		// An occupied target belongs to someone else.
		if !errors.Is(err, transport.ErrExists) {
			m.discard(ctx, t.TargetRoot.Child(resolved))
		}
		return fsError("transfer", entry, err)
	}

	m.stampModTime(ctx, entry, dest)
	m.collector.AddItemsCopied(1)
	m.emit(event.Event{Type: event.Copied, TaskID: t.ID, Path: dest.URL(), Source: entry.URL()})
	return nil
}

// discard removes a partially written target.
func (m *Manager) discard(ctx context.Context, e transport.Entry) {
	if err := m.fs.Remove(context.WithoutCancel(ctx), e); err != nil && !errors.Is(err, transport.ErrNotFound) {
		slog.Debug("discard partial target", "path", e.URL(), "error", err)
	}
}

// stampModTime copies the source mtime onto dest. Failures are not fatal.
func (m *Manager) stampModTime(ctx context.Context, src, dest transport.Entry) {
	info, err := m.fs.Stat(ctx, src)
	if err != nil {
		slog.Debug("stat source for mtime", "path", src.URL(), "error", err)
		return
	}
	if err := m.fs.SetModifiedTime(ctx, dest, info.ModTime); err != nil {
		slog.Debug("set mtime", "path", dest.URL(), "error", err)
	}
}

// finishTask runs completion work for a drained task. For delete-after-copy
// the selected originals are removed; descendants went with them.
func (m *Manager) finishTask(ctx context.Context, t *Task) {
	if t.Mode != ModeDeleteAfterCopy {
		return
	}
	for _, src := range t.Sources {
		if err := m.fs.Remove(ctx, src); err != nil {
			slog.Warn("remove original after copy", "path", src.URL(), "error", err)
			continue
		}
		m.collector.AddItemsDeleted(1)
		m.emit(event.Event{Type: event.Deleted, TaskID: t.ID, Path: src.URL()})
	}
}

// archiveName is the zip name for a selection before conflict resolution:
// one entry keeps its name minus the last extension, several become
// "Archive.zip".
func archiveName(sources []transport.Entry) string {
	if len(sources) != 1 {
		return "Archive.zip"
	}
	base, _ := splitExt(sources[0].Name())
	return base + ".zip"
}

// runArchive zips the whole selection in one call.
func (m *Manager) runArchive(ctx context.Context, t *Task) error {
	name, err := m.resolver.Resolve(ctx, t.TargetRoot, archiveName(t.Sources))
	if err != nil {
		return err
	}

	m.mu.Lock()
	t.markAllProcessed()
	m.mu.Unlock()
	m.emitStatus(event.Progress)

	out, err := m.fs.CreateArchive(ctx, t.SourceRoot, t.Sources, name)
	if err != nil {
		return fsError("archive", t.TargetRoot.Child(name), err)
	}

	m.mu.Lock()
	t.completeAll()
	m.mu.Unlock()
	m.collector.AddItemsCopied(1)
	m.emit(event.Event{Type: event.Copied, TaskID: t.ID, Path: out.URL(), Source: t.SourceRoot.URL()})
	return nil
}
