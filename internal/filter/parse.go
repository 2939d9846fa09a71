package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile reads filter rules from a file and appends them to the chain.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()
	return c.Load(f, path)
}

// Load reads rules from r, one per line:
//
//   - pattern  exclude
//   - pattern  include
//     # comment
//     pattern    exclude
//
// name is used in error messages.
func (c *Chain) Load(r io.Reader, name string) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var err error
		switch {
		case strings.HasPrefix(line, "+ "):
			err = c.AddInclude(strings.TrimSpace(line[2:]))
		case strings.HasPrefix(line, "- "):
			err = c.AddExclude(strings.TrimSpace(line[2:]))
		default:
			err = c.AddExclude(line)
		}
		if err != nil {
			return fmt.Errorf("filter %s line %d: %w", name, lineNum, err)
		}
	}
	return scanner.Err()
}
