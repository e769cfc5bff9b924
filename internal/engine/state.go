package engine

import (
	"fmt"
	"strings"
)

// State is the engine's position in the transfer lifecycle.
type State int

const (
	Idle State = iota
	Transferring
	Paused
	Completed
	Failed
	Cancelled
)

var stateNames = [...]string{
	Idle:         "idle",
	Transferring: "transferring",
	Paused:       "paused",
	Completed:    "completed",
	Failed:       "failed",
	Cancelled:    "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Active reports whether a transfer owns the engine.
func (s State) Active() bool { return s == Transferring || s == Paused }

// Terminal reports whether s ends a transfer.
func (s State) Terminal() bool { return s == Completed || s == Failed || s == Cancelled }

// CancelPolicy decides what happens to a partially written destination.
type CancelPolicy int

const (
	// KeepPartial leaves written bytes in place so the transfer can resume.
	KeepPartial CancelPolicy = iota
	// RemovePartial deletes the destination file.
	RemovePartial
)

func (p CancelPolicy) String() string {
	if p == RemovePartial {
		return "remove"
	}
	return "keep"
}

// ParseCancelPolicy accepts "keep" or "remove".
func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return KeepPartial, nil
	case "remove":
		return RemovePartial, nil
	default:
		return KeepPartial, fmt.Errorf("unknown cancel policy %q (want keep or remove)", s)
	}
}
