package ui

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether fd is a terminal.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// TermWidth returns the width of the terminal on fd in columns, or 80.
func TermWidth(fd uintptr) int {
	w, _, err := term.GetSize(int(fd))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// Terminal reports whether w writes to a terminal, and its width when it
// does. Buffers and pipes are never terminals.
func Terminal(w io.Writer) (bool, int) {
	f, ok := w.(*os.File)
	if !ok || !IsTTY(f.Fd()) {
		return false, 0
	}
	return true, TermWidth(f.Fd())
}
