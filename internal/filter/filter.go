package filter

// rule is a single include or exclude filter rule.
type rule struct {
	pattern *pattern
	include bool
}

// Chain holds an ordered list of filter rules plus size filters. A built
// chain is read-only and safe for concurrent Match calls.
type Chain struct {
	rules   []rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(raw string) error {
	return c.add(raw, false)
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(raw string) error {
	return c.add(raw, true)
}

func (c *Chain) add(raw string, include bool) error {
	p, err := compilePattern(raw)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, rule{pattern: p, include: include})
	return nil
}

// SetMinSize sets the minimum file size filter.
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize sets the maximum file size filter.
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Empty reports whether the chain has no rules and no size filters.
func (c *Chain) Empty() bool {
	return c == nil || (len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0)
}

// Match returns true if the entry should be INCLUDED. relPath is relative to
// the transfer's source directory; size is ignored for directories. A nil
// chain includes everything.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if c == nil {
		return true
	}
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}

	// First match wins.
	for _, r := range c.rules {
		if r.pattern.match(relPath, isDir) {
			return r.include
		}
	}
	return true
}
