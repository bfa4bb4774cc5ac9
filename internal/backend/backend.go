package backend

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/samcharles93/memspace/internal/space"
)

// Accelerator runtimes.
const (
	None     = "none"
	Emulated = "emulated"
	CUDA     = "cuda"
	Auto     = "auto"
)

// Allocation strategies. Which ones apply depends on the physical space.
const (
	System  = "system"
	Vendor  = "vendor"
	Caching = "caching"
	Pool    = "pool"
)

// MemoryBackend allocates and releases memory in exactly one physical space.
// A backend never sees a zero-byte request.
type MemoryBackend interface {
	Name() string
	Space() space.Physical
	Allocate(size int, zero bool) (unsafe.Pointer, error)
	Free(ptr unsafe.Pointer) error
}

// Reallocator is implemented by host backends that can resize in place.
type Reallocator interface {
	Reallocate(ptr unsafe.Pointer, size int) (unsafe.Pointer, error)
}

// Normalize validates an accelerator runtime name.
func Normalize(name string) (string, error) {
	accel := strings.ToLower(strings.TrimSpace(name))
	if accel == "" {
		return Auto, nil
	}
	switch accel {
	case None, Emulated, CUDA, Auto:
		return accel, nil
	default:
		return "", fmt.Errorf("unknown accelerator %q (expected auto, none, emulated, or cuda)", accel)
	}
}

var strategies = map[space.Physical][]string{
	space.Host:       {System, Pool},
	space.HostPinned: {Vendor, Pool},
	space.Device:     {Vendor, Caching, Pool},
	space.Unified:    {Vendor, Caching, Pool},
}

// NormalizeStrategy validates a strategy name for the given space. An empty
// name selects the space's first strategy.
func NormalizeStrategy(p space.Physical, name string) (string, error) {
	allowed, ok := strategies[p]
	if !ok {
		return "", fmt.Errorf("no allocation strategies for %s memory", p)
	}
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return allowed[0], nil
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown %s strategy %q (expected %s)", p, s, strings.Join(allowed, ", "))
}
