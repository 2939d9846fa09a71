package engine

import (
	"cmp"
	"context"
	"slices"

	"github.com/maruel/natural"

	"github.com/bamsammich/courier/internal/filter"
	"github.com/bamsammich/courier/internal/transport"
)

// lister is the read side of the filesystem used for enumeration.
type lister interface {
	ReadDir(ctx context.Context, dir transport.Entry) ([]transport.Entry, error)
}

// prepare fills the task's entry lists. Copies and archives walk the
// selection recursively in pre-order with children in natural name order.
// Moves are not recursive: the selected entries are the work items, deepest
// first. The filter only applies to plain copies, since move and archive
// operate on whole selections.
func (t *Task) prepare(ctx context.Context, fs lister, chain *filter.Chain) error {
	t.dirs, t.files = entryList{}, entryList{}

	if t.Mode == ModeMove {
		sources := slices.Clone(t.Sources)
		slices.SortStableFunc(sources, func(a, b transport.Entry) int {
			return cmp.Compare(len(b.Path), len(a.Path))
		})
		for _, e := range sources {
			if _, err := t.relPath(e); err != nil {
				return err
			}
			l := t.list(e.IsDir)
			l.items = append(l.items, e)
		}
	} else {
		if t.Mode != ModeCopy {
			chain = nil
		}
		for _, e := range t.Sources {
			if err := t.walk(ctx, fs, chain, e); err != nil {
				return err
			}
		}
	}

	t.totalBytes, t.completedBytes, t.processed = 0, 0, 0
	for _, l := range []*entryList{&t.dirs, &t.files} {
		for _, e := range l.items {
			t.totalBytes += t.size(e)
		}
	}
	t.prepared = true
	return nil
}

func (t *Task) walk(ctx context.Context, fs lister, chain *filter.Chain, e transport.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := t.relPath(e)
	if err != nil {
		return err
	}
	if !chain.Match(rel, e.IsDir, e.Size) {
		return nil
	}

	if !e.IsDir {
		t.files.items = append(t.files.items, e)
		return nil
	}
	t.dirs.items = append(t.dirs.items, e)

	children, err := fs.ReadDir(ctx, e)
	if err != nil {
		return fsError("readdir", e, err)
	}
	slices.SortFunc(children, func(a, b transport.Entry) int {
		switch {
		case natural.Less(a.Name(), b.Name()):
			return -1
		case natural.Less(b.Name(), a.Name()):
			return 1
		default:
			return 0
		}
	})
	for _, c := range children {
		if err := t.walk(ctx, fs, chain, c); err != nil {
			return err
		}
	}
	return nil
}
