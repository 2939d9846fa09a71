package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/bamsammich/courier/internal/transport"
)

// MaxProbes is the number of candidate names tried before giving up.
const MaxProbes = 10

var numberedSuffix = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// Resolver picks collision-free names in a target directory.
type Resolver struct {
	fs Prober
}

// NewResolver returns a Resolver probing through fs.
func NewResolver(fs Prober) *Resolver {
	return &Resolver{fs: fs}
}

// Resolve returns the first free name for rel inside dir. Only the final
// segment of rel is renumbered: "report.txt" becomes "report (1).txt",
// "report (2).txt" and so on; a name already ending in " (N)" continues
// from N. After MaxProbes collisions it returns a TargetExistsError for the
// first occupant found.
func (r *Resolver) Resolve(ctx context.Context, dir transport.Entry, rel string) (string, error) {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" {
		return "", fmt.Errorf("resolve %s: empty name", dir.URL())
	}
	parent, name := path.Split(rel)
	prefix, ext := splitExt(name)

	start := 0
	if m := numberedSuffix.FindStringSubmatch(prefix); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			prefix, start = m[1], n
		}
	}

	var first transport.Entry
	for i := start; i < start+MaxProbes; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := parent + numberedName(prefix, ext, i)
		existing, err := r.fs.Exists(ctx, dir, candidate)
		if errors.Is(err, transport.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fsError("probe", dir.Child(candidate), err)
		}
		if i == start {
			first = existing
		}
	}
	return "", &TargetExistsError{Entry: first}
}

// splitExt splits name at its last dot. A leading dot belongs to the name,
// so ".bashrc" has no extension.
func splitExt(name string) (prefix, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

func numberedName(prefix, ext string, i int) string {
	if i == 0 {
		return prefix + ext
	}
	return prefix + " (" + strconv.Itoa(i) + ")" + ext
}
