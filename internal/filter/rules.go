package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFile appends rules from path. Each non-blank line is "+ pattern"
// (include), "- pattern" (exclude) or a bare pattern (exclude). Lines
// starting with # are comments.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		include := false
		switch {
		case line == "+" || strings.HasPrefix(line, "+ "):
			include, line = true, line[1:]
		case line == "-" || strings.HasPrefix(line, "- "):
			line = line[1:]
		}
		if err := c.add(strings.TrimSpace(line), include); err != nil {
			return fmt.Errorf("%s:%d: %w", path, n, err)
		}
	}
	return sc.Err()
}
