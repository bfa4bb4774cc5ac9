package memory

import (
	"fmt"

	"github.com/samcharles93/memspace/internal/debug"
	"github.com/samcharles93/memspace/internal/space"
)

// UnaryPolicyIn picks where an operation on memory in p runs.
func (h *Handle) UnaryPolicyIn(p space.Physical) space.Policy {
	switch p {
	case space.Host, space.HostPinned:
		return space.PolicyHost
	case space.Device:
		return space.PolicyDevice
	case space.Unified:
		if h.acc != nil {
			return h.defaultPolicy()
		}
		h.report(fmt.Errorf("%w: unified memory without an accelerator", ErrNoPolicy))
		debug.Assert(false, "unified memory without an accelerator")
		return space.PolicyUndefined
	default:
		h.report(fmt.Errorf("%w: %s", ErrUnknownLocation, p))
		return space.PolicyUndefined
	}
}

// BinaryPolicyIn picks where an operation touching memory in a and b runs.
// Host with Device and Device with Unified have no common policy.
func (h *Handle) BinaryPolicyIn(a, b space.Physical) space.Policy {
	if !a.IsValid() || !b.IsValid() {
		h.report(fmt.Errorf("%w: %s, %s", ErrUnknownLocation, a, b))
		return space.PolicyUndefined
	}
	if a == space.HostPinned {
		a = space.Host
	}
	if b == space.HostPinned {
		b = space.Host
	}

	hostDevice := (a == space.Host && b == space.Device) || (a == space.Device && b == space.Host)
	deviceUnified := (a == space.Device && b == space.Unified) || (a == space.Unified && b == space.Device)
	switch {
	case hostDevice, deviceUnified:
		h.report(fmt.Errorf("%w: %s with %s", ErrNoPolicy, a, b))
		debug.Assert(false, "no execution policy for "+a.String()+" with "+b.String())
		return space.PolicyUndefined
	case a == space.Host || b == space.Host:
		return space.PolicyHost
	case a == space.Device || b == space.Device:
		return space.PolicyDevice
	default:
		return h.UnaryPolicyIn(space.Unified)
	}
}

func (h *Handle) UnaryPolicy(l space.Logical) space.Policy {
	return h.UnaryPolicyIn(h.Resolve(l))
}

func (h *Handle) BinaryPolicy(a, b space.Logical) space.Policy {
	return h.BinaryPolicyIn(h.Resolve(a), h.Resolve(b))
}
