package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	TransferQueued Type = iota + 1
	TransferStarted
	TransferProgress
	TransferPaused
	TransferResumed
	ChunkRetry
	TransferCompleted
	TransferFailed
	TransferCancelled
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	TransferQueued:    "TransferQueued",
	TransferStarted:   "TransferStarted",
	TransferProgress:  "TransferProgress",
	TransferPaused:    "TransferPaused",
	TransferResumed:   "TransferResumed",
	ChunkRetry:        "ChunkRetry",
	TransferCompleted: "TransferCompleted",
	TransferFailed:    "TransferFailed",
	TransferCancelled: "TransferCancelled",
	VerifyOK:          "VerifyOK",
	VerifyFailed:      "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Terminal reports whether t ends a transfer.
func (t Type) Terminal() bool {
	return t == TransferCompleted || t == TransferFailed || t == TransferCancelled
}

// Event represents a single progress event from the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	TaskID    string
	Src       string
	Dst       string
	Offset    int64 // bytes transferred so far
	Total     int64 // file size
	Attempt   int   // ChunkRetry only
	Error     error
}
