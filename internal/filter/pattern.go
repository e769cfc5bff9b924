package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// glob is a compiled rsync-style pattern. A pattern containing a slash is
// anchored to the walk root; otherwise it matches any path suffix. A
// trailing slash limits it to directories. Patterns match
// case-insensitively, like the memory stick's FAT filesystem.
type glob struct {
	re      *regexp.Regexp
	dirOnly bool
}

func compileGlob(pattern string) (*glob, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	g := &glob{}
	if strings.HasSuffix(pattern, "/") {
		g.dirOnly = true
		pattern = strings.TrimRight(pattern, "/")
	}
	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	expr := translate(pattern) + "$"
	if anchored {
		expr = "^" + expr
	} else {
		expr = "(^|/)" + expr
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	g.re = re
	return g, nil
}

func (g *glob) match(rel string, isDir bool) bool {
	if g.dirOnly && !isDir {
		return false
	}
	return g.re.MatchString(rel)
}

// translate rewrites glob syntax as a regular expression: ** crosses
// directories, * and ? stay within one, [...] and [!...] are classes.
func translate(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '*':
			if !strings.HasPrefix(p[i:], "**") {
				b.WriteString("[^/]*")
				continue
			}
			if strings.HasPrefix(p[i:], "**/") {
				b.WriteString("(.*/)?")
				i += 2
			} else {
				b.WriteString(".*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := classEnd(p, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// classEnd returns the index of the ] closing the class opened at p[i], or
// -1. A ] directly after [ or [! is a literal member.
func classEnd(p string, i int) int {
	j := i + 1
	if j < len(p) && p[j] == '!' {
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	for ; j < len(p); j++ {
		if p[j] == ']' {
			return j
		}
	}
	return -1
}
