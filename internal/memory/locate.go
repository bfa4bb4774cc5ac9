package memory

import (
	"fmt"
	"unsafe"

	"github.com/samcharles93/memspace/internal/debug"
	"github.com/samcharles93/memspace/internal/space"
)

// Locate reports the physical space ptr lives in. Without an accelerator
// every address is host memory.
func (h *Handle) Locate(ptr unsafe.Pointer) space.Physical {
	if h.acc == nil {
		return space.Host
	}
	p, err := h.acc.PointerSpace(ptr)
	if err != nil {
		h.report(fmt.Errorf("locate %p: %w", ptr, err))
		return space.Undefined
	}
	return p
}

func (h *Handle) checking() bool {
	return debug.Enabled || h.cfg.CheckLocations
}

// checkLocation verifies that ptr lives where the caller says it does. It
// returns false after reporting a mismatch.
func (h *Handle) checkLocation(op string, ptr unsafe.Pointer, want space.Physical) bool {
	if ptr == nil || !h.checking() {
		return true
	}
	if got := h.Locate(ptr); got != want {
		h.violate(fmt.Errorf("%w: %s: %p is %s memory, expected %s", ErrLocationMismatch, op, ptr, got.Label(), want.Label()))
		return false
	}
	return true
}
