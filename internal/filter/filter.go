// Package filter decides which files a recursive push or pull moves.
//
// Rules use rsync-style globs and are evaluated in order; the first rule
// that matches decides. Files no rule matches are kept.
package filter

import (
	"path"
	"strings"

	"github.com/bamsammich/psplink/internal/transport"
)

// HostJunk lists files desktop systems leave behind that never belong on
// the memory stick.
var HostJunk = []string{".DS_Store", "._*", "Thumbs.db", "desktop.ini", ".Spotlight-V100/", ".Trashes/"}

type rule struct {
	glob    *glob
	include bool
}

// Chain is an ordered set of include/exclude rules plus optional size and
// extension limits.
type Chain struct {
	rules   []rule
	exts    map[string]struct{}
	minSize int64
	maxSize int64
}

// NewChain returns a chain that keeps everything.
func NewChain() *Chain {
	return &Chain{}
}

// Default returns a chain that drops HostJunk.
func Default() *Chain {
	c := NewChain()
	for _, p := range HostJunk {
		_ = c.Exclude(p) // static patterns always compile
	}
	return c
}

// Exclude appends a rule dropping paths matching pattern.
func (c *Chain) Exclude(pattern string) error { return c.add(pattern, false) }

// Include appends a rule keeping paths matching pattern.
func (c *Chain) Include(pattern string) error { return c.add(pattern, true) }

func (c *Chain) add(pattern string, include bool) error {
	g, err := compileGlob(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, rule{glob: g, include: include})
	return nil
}

// Extensions restricts files to the given extensions ("iso", ".CSO").
// Directories are unaffected so a walk can still descend.
func (c *Chain) Extensions(exts ...string) {
	if c.exts == nil {
		c.exts = make(map[string]struct{}, len(exts))
	}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			c.exts[e] = struct{}{}
		}
	}
}

// SetMinSize drops files smaller than n bytes. Zero disables the limit.
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize drops files larger than n bytes. Zero disables the limit.
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Empty reports whether the chain keeps everything.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && len(c.exts) == 0 && c.minSize == 0 && c.maxSize == 0
}

// Allow reports whether e should be transferred.
func (c *Chain) Allow(e transport.FileEntry) bool {
	rel := e.RelPath
	if rel == "" {
		rel = path.Base(strings.ReplaceAll(e.Path, "\\", "/"))
	}
	return c.Match(rel, e.IsDir, e.Size)
}

// Match reports whether rel, a slash-separated path relative to the walk
// root, should be transferred.
func (c *Chain) Match(rel string, isDir bool, size int64) bool {
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
		if len(c.exts) > 0 {
			ext := strings.ToLower(strings.TrimPrefix(path.Ext(rel), "."))
			if _, ok := c.exts[ext]; !ok {
				return false
			}
		}
	}
	for _, r := range c.rules {
		if r.glob.match(rel, isDir) {
			return r.include
		}
	}
	return true
}
