package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/bamsammich/courier/internal/transport"
)

// Paste copies (or moves) sources into targetDir. Sources are grouped by
// parent directory into one task each; every task is enumerated before any
// is enqueued, so an enumeration failure enqueues nothing.
func (m *Manager) Paste(ctx context.Context, sources []transport.Entry, targetDir transport.Entry, move bool) error {
	if len(sources) == 0 {
		return nil
	}

	target, err := m.fs.Stat(ctx, targetDir)
	if err != nil {
		return fsError("stat", targetDir, err)
	}
	if !target.IsDir {
		return fmt.Errorf("paste into %s: not a directory", target.URL())
	}

	var groups []*Task
	byParent := make(map[string]*Task)
	for _, src := range sources {
		parent := src.Parent()
		if move && parent.Volume == target.Volume && parent.Path == target.Path {
			continue
		}
		if src.Volume == target.Volume && isWithin(target.Path, src.Path) {
			return fmt.Errorf("paste %s into itself (%s)", src.URL(), target.URL())
		}

		key := parent.URL()
		t, ok := byParent[key]
		if !ok {
			mode := ModeCopy
			if move {
				mode = ModeDeleteAfterCopy
				if isMovable(src, target) {
					mode = ModeMove
				}
			}
			t = NewTask(mode, parent, target, nil)
			byParent[key] = t
			groups = append(groups, t)
		}
		t.Sources = append(t.Sources, src)
	}

	for _, t := range groups {
		if err := t.prepare(ctx, m.fs, m.cfg.Filter); err != nil {
			return err
		}
	}
	for _, t := range groups {
		if err := m.Enqueue(t); err != nil {
			return err
		}
	}
	return nil
}

// Archive zips sources into the directory holding the first of them. All
// sources must share that directory.
func (m *Manager) Archive(ctx context.Context, sources []transport.Entry) error {
	if len(sources) == 0 {
		return nil
	}
	root := sources[0].Parent()
	t := NewTask(ModeArchive, root, root, sources)
	if err := t.prepare(ctx, m.fs, nil); err != nil {
		return err
	}
	return m.Enqueue(t)
}

// isWithin reports whether p is dir or below it.
func isWithin(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, strings.TrimSuffix(dir, "/")+"/")
}
