package filter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// pattern is an rsync-style glob evaluated with doublestar.
type pattern struct {
	glob     string // doublestar expression matched against the whole path
	original string
	dirOnly  bool // pattern ends with /
}

// compilePattern converts an rsync-style glob into a doublestar expression.
// A leading "/" or an inner "/" anchors the pattern to the root; otherwise
// it may match at any depth.
func compilePattern(raw string) (*pattern, error) {
	p := &pattern{original: raw}
	expr := raw

	if strings.HasSuffix(expr, "/") {
		p.dirOnly = true
		expr = strings.TrimSuffix(expr, "/")
	}

	switch {
	case strings.HasPrefix(expr, "/"):
		expr = strings.TrimPrefix(expr, "/")
	case expr == "":
	case strings.Contains(expr, "/"):
	default:
		expr = "**/" + expr
	}

	if expr == "" || !doublestar.ValidatePattern(expr) {
		return nil, fmt.Errorf("invalid filter pattern %q", raw)
	}
	p.glob = expr
	return p, nil
}

func (p *pattern) match(relPath string, isDir bool) bool {
	if p.dirOnly && !isDir {
		return false
	}
	ok, err := doublestar.Match(p.glob, strings.TrimPrefix(relPath, "/"))
	return err == nil && ok
}

func (p *pattern) String() string { return p.original }
