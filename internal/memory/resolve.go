package memory

import "github.com/samcharles93/memspace/internal/space"

// Resolve maps a logical request to the physical space that serves it.
// Unrecognized values resolve to Host.
func (h *Handle) Resolve(l space.Logical) space.Physical {
	if h.acc == nil {
		return space.Host
	}
	switch l {
	case space.LogicalHostPinned:
		return space.HostPinned
	case space.LogicalDevice:
		if h.cfg.UnifiedMemory {
			return space.Unified
		}
		return space.Device
	case space.LogicalUnified:
		if h.cfg.UnifiedMemory && h.defaultPolicy() == space.PolicyHost {
			return space.Host
		}
		return space.Unified
	default:
		return space.Host
	}
}

func (h *Handle) defaultPolicy() space.Policy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.DefaultPolicy
}
