// Package device describes the vendor runtime an accelerator backend exposes
// to the memory layer.
package device

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/samcharles93/memspace/internal/space"
)

var (
	ErrOutOfMemory = errors.New("device: out of memory")
	ErrBadPointer  = errors.New("device: pointer not owned by this accelerator")
	ErrClosed      = errors.New("device: accelerator closed")
)

// MemcpyKind is the direction of a transfer as the vendor runtime sees it.
type MemcpyKind int

const (
	HostToHost MemcpyKind = iota
	HostToDevice
	DeviceToHost
	DeviceToDevice
)

func (k MemcpyKind) String() string {
	switch k {
	case HostToHost:
		return "host-to-host"
	case HostToDevice:
		return "host-to-device"
	case DeviceToHost:
		return "device-to-host"
	case DeviceToDevice:
		return "device-to-device"
	default:
		return fmt.Sprintf("memcpy-kind(%d)", int(k))
	}
}

// MemInfo is the accelerator's view of its own memory.
type MemInfo struct {
	Free  uint64
	Total uint64
}

// Used returns Total minus Free.
func (m MemInfo) Used() uint64 {
	if m.Free > m.Total {
		return 0
	}
	return m.Total - m.Free
}

// Accelerator is the runtime of one accelerator device. Implementations are
// safe for concurrent use; asynchronous work is ordered on the accelerator's
// compute stream.
type Accelerator interface {
	Name() string

	AllocDevice(size int) (unsafe.Pointer, error)
	FreeDevice(ptr unsafe.Pointer) error
	AllocManaged(size int) (unsafe.Pointer, error)
	FreeManaged(ptr unsafe.Pointer) error
	AllocPinned(size int) (unsafe.Pointer, error)
	FreePinned(ptr unsafe.Pointer) error

	// Memset fills n bytes of device or managed memory and returns once the
	// fill is visible to subsequent work.
	Memset(ptr unsafe.Pointer, value byte, n int) error
	// Memcpy waits for pending stream work, then copies synchronously.
	Memcpy(dst, src unsafe.Pointer, n int, kind MemcpyKind) error
	// MemcpyAsync enqueues the copy on the compute stream.
	MemcpyAsync(dst, src unsafe.Pointer, n int, kind MemcpyKind) error
	// Prefetch migrates managed memory towards the device or the host.
	Prefetch(ptr unsafe.Pointer, n int, toDevice bool) error
	Synchronize() error

	// PointerSpace reports the space of ptr. Addresses the runtime does not
	// know are ordinary host memory.
	PointerSpace(ptr unsafe.Pointer) (space.Physical, error)
	MemInfo() (MemInfo, error)
	Close() error
}
