package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bamsammich/courier/internal/transport"
)

// Mode selects what a Task does with its entries.
type Mode int

const (
	ModeCopy Mode = iota + 1
	ModeMove
	ModeDeleteAfterCopy
	ModeArchive
)

var modeNames = [...]string{
	ModeCopy:            "copy",
	ModeMove:            "move",
	ModeDeleteAfterCopy: "delete-after-copy",
	ModeArchive:         "archive",
}

func (m Mode) String() string {
	if m > 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// entryList is an ordered list with a cursor. Items before next are
// completed; items from next on are pending. active marks items[next] as
// dispatched.
type entryList struct {
	items  []transport.Entry
	next   int
	active bool
}

func (l *entryList) pending() int   { return len(l.items) - l.next }
func (l *entryList) completed() int { return l.next }

func (l *entryList) head() (transport.Entry, bool) {
	if l.next >= len(l.items) {
		return transport.Entry{}, false
	}
	return l.items[l.next], true
}

type rename struct {
	from, to string
}

// Task is one source-to-target transfer. Its lists are filled by prepare
// and drained one entry at a time by the manager.
type Task struct {
	ID         string
	SourceRoot transport.Entry
	TargetRoot transport.Entry
	Sources    []transport.Entry
	Mode       Mode

	dirs  entryList
	files entryList

	totalBytes     int64
	completedBytes int64
	processed      int64 // bytes of the active entry already counted

	renames  []rename
	prepared bool
}

// NewTask creates an unprepared task.
func NewTask(mode Mode, sourceRoot, targetRoot transport.Entry, sources []transport.Entry) *Task {
	return &Task{
		ID:         uuid.NewString(),
		Mode:       mode,
		SourceRoot: sourceRoot,
		TargetRoot: targetRoot,
		Sources:    append([]transport.Entry(nil), sources...),
	}
}

// size is what an entry contributes to the byte totals. Directories and
// moves are metadata operations and weigh one byte.
func (t *Task) size(e transport.Entry) int64 {
	if e.IsDir || t.Mode == ModeMove {
		return 1
	}
	return max(e.Size, 0)
}

func (t *Task) list(isDir bool) *entryList {
	if isDir {
		return &t.dirs
	}
	return &t.files
}

// nextEntry returns the entry to process next, directories first, and marks
// it in progress. ok is false once the task is drained.
func (t *Task) nextEntry() (e transport.Entry, ok bool) {
	for _, l := range []*entryList{&t.dirs, &t.files} {
		if e, ok := l.head(); ok {
			l.active = true
			return e, true
		}
	}
	return transport.Entry{}, false
}

// active returns the in-progress entry, if any.
func (t *Task) active() (transport.Entry, bool) {
	for _, l := range []*entryList{&t.dirs, &t.files} {
		if l.active {
			return l.head()
		}
	}
	return transport.Entry{}, false
}

// completeEntry advances past e, which must be the in-progress head of its
// list. The entry's uncounted bytes move to completed.
func (t *Task) completeEntry(e transport.Entry) error {
	l := t.list(e.IsDir)
	head, ok := l.head()
	if !l.active || !ok || head.Volume != e.Volume || head.Path != e.Path {
		want := "nothing"
		if cur, ok := t.active(); ok {
			want = cur.URL()
		}
		return &ProtocolViolationError{
			Msg: fmt.Sprintf("task %s completed %s while %s is in progress", t.ID, e.URL(), want),
		}
	}

	t.completedBytes += t.size(head) - t.processed
	t.processed = 0
	l.next++
	l.active = false
	return nil
}

// progress records processed bytes of the active entry. Values are clamped
// to the entry size and never move backwards.
func (t *Task) progress(processed int64) {
	e, ok := t.active()
	if !ok {
		return
	}
	processed = min(processed, t.size(e))
	if processed <= t.processed {
		return
	}
	t.completedBytes += processed - t.processed
	t.processed = processed
}

// markAllProcessed counts every byte as done without completing entries.
func (t *Task) markAllProcessed() {
	t.completedBytes = t.totalBytes
	t.processed = 0
}

// completeAll completes every entry at once.
func (t *Task) completeAll() {
	for _, l := range []*entryList{&t.dirs, &t.files} {
		l.next = len(l.items)
		l.active = false
	}
	t.completedBytes = t.totalBytes
	t.processed = 0
}

func (t *Task) drained() bool {
	return t.dirs.pending() == 0 && t.files.pending() == 0
}

func (t *Task) pendingItems() int   { return t.dirs.pending() + t.files.pending() }
func (t *Task) completedItems() int { return t.dirs.completed() + t.files.completed() }
func (t *Task) pendingBytes() int64 { return t.totalBytes - t.completedBytes }

// pendingNames returns the names of up to n pending entries.
func (t *Task) pendingNames(n int) []string {
	var names []string
	for _, l := range []*entryList{&t.dirs, &t.files} {
		for _, e := range l.items[l.next:] {
			if len(names) == n {
				return names
			}
			names = append(names, e.Name())
		}
	}
	return names
}

// relPath returns e's path relative to the source root.
func (t *Task) relPath(e transport.Entry) (string, error) {
	if e.Volume != t.SourceRoot.Volume {
		return "", &UnexpectedSourceEntryError{Path: e.URL(), Root: t.SourceRoot.URL()}
	}
	root := strings.TrimSuffix(t.SourceRoot.Path, "/")
	rel, ok := strings.CutPrefix(e.Path, root+"/")
	if !ok || rel == "" {
		return "", &UnexpectedSourceEntryError{Path: e.URL(), Root: t.SourceRoot.URL()}
	}
	return rel, nil
}

// addRename records that directory from was created as to.
func (t *Task) addRename(from, to string) {
	t.renames = append(t.renames, rename{from: from, to: to})
}

// applyRenames maps rel through the longest recorded directory rename.
func (t *Task) applyRenames(rel string) string {
	best := -1
	for i, r := range t.renames {
		if rel != r.from && !strings.HasPrefix(rel, r.from+"/") {
			continue
		}
		if best < 0 || len(r.from) > len(t.renames[best].from) {
			best = i
		}
	}
	if best < 0 {
		return rel
	}
	r := t.renames[best]
	return r.to + rel[len(r.from):]
}
