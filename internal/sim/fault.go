package sim

import "github.com/bamsammich/psplink/internal/proto"

// FailKind selects how an injected fault breaks a command.
type FailKind int

const (
	// FailTimeout fails the bulk write with usb.ErrTimeout.
	FailTimeout FailKind = iota
	// FailStall fails the bulk write with usb.ErrStall.
	FailStall
	// FailIO fails the bulk write with a generic I/O error.
	FailIO
	// FailRemove unplugs the console.
	FailRemove
	// FailStatus answers with Status instead of executing.
	FailStatus
	// DropReply executes the command but never answers it.
	DropReply
)

// Fault breaks matching commands. The first Skip matches pass through, then
// Count matches fail; Count < 0 fails forever.
type Fault struct {
	Code   proto.Code
	Kind   FailKind
	Status proto.Status
	Skip   int
	Count  int
}

// Inject arms a fault.
func (c *Console) Inject(f Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, &f)
}

// ClearFaults disarms every fault.
func (c *Console) ClearFaults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = nil
}

// takeFault returns the fault that fires for code, if any. c.mu is held.
func (c *Console) takeFault(code proto.Code) *Fault {
	for i, f := range c.faults {
		if f.Code != code {
			continue
		}
		if f.Skip > 0 {
			f.Skip--
			return nil
		}
		if f.Count > 0 {
			f.Count--
			if f.Count == 0 {
				c.faults = append(c.faults[:i], c.faults[i+1:]...)
			}
		}
		return f
	}
	return nil
}
