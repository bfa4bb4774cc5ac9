//go:build cuda

// Package cuda implements device.Accelerator on the CUDA runtime.
package cuda

import (
	"fmt"
	"unsafe"

	"github.com/samcharles93/memspace/internal/backend/cuda/native"
	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/space"
)

type Accelerator struct {
	device int
	stream native.Stream
}

var _ device.Accelerator = (*Accelerator)(nil)

func New() (*Accelerator, error) {
	count, err := native.DeviceCount()
	if err != nil {
		return nil, fmt.Errorf("cuda device query failed: %w", err)
	}
	if count < 1 {
		return nil, fmt.Errorf("no cuda devices detected")
	}
	dev, err := native.CurrentDevice()
	if err != nil {
		return nil, fmt.Errorf("cuda device query failed: %w", err)
	}
	stream, err := native.NewStream()
	if err != nil {
		return nil, fmt.Errorf("cuda stream create failed: %w", err)
	}
	return &Accelerator{device: dev, stream: stream}, nil
}

func (a *Accelerator) Name() string {
	return "cuda"
}

func (a *Accelerator) AllocDevice(size int) (unsafe.Pointer, error) {
	ptr, err := native.Malloc(size)
	return ptr, allocError(err)
}

func (a *Accelerator) FreeDevice(ptr unsafe.Pointer) error {
	return wrap("free device", native.Free(ptr))
}

func (a *Accelerator) AllocManaged(size int) (unsafe.Pointer, error) {
	ptr, err := native.MallocManaged(size)
	return ptr, allocError(err)
}

func (a *Accelerator) FreeManaged(ptr unsafe.Pointer) error {
	return wrap("free managed", native.Free(ptr))
}

func (a *Accelerator) AllocPinned(size int) (unsafe.Pointer, error) {
	ptr, err := native.MallocHost(size)
	return ptr, allocError(err)
}

func (a *Accelerator) FreePinned(ptr unsafe.Pointer) error {
	return wrap("free pinned", native.FreeHost(ptr))
}

func (a *Accelerator) Memset(ptr unsafe.Pointer, value byte, n int) error {
	return wrap("memset", native.Memset(ptr, value, n))
}

func (a *Accelerator) Memcpy(dst, src unsafe.Pointer, n int, kind device.MemcpyKind) error {
	return wrap("memcpy "+kind.String(), native.Memcpy(dst, src, n, memcpyKind(kind)))
}

func (a *Accelerator) MemcpyAsync(dst, src unsafe.Pointer, n int, kind device.MemcpyKind) error {
	return wrap("memcpy async "+kind.String(), native.MemcpyAsync(dst, src, n, memcpyKind(kind), a.stream))
}

func (a *Accelerator) Prefetch(ptr unsafe.Pointer, n int, toDevice bool) error {
	return wrap("prefetch", native.PrefetchAsync(ptr, n, toDevice, a.device, a.stream))
}

func (a *Accelerator) Synchronize() error {
	return wrap("synchronize", a.stream.Synchronize())
}

func (a *Accelerator) PointerSpace(ptr unsafe.Pointer) (space.Physical, error) {
	typ, err := native.PointerType(ptr)
	if err != nil {
		return space.Undefined, wrap("pointer attributes", err)
	}
	switch typ {
	case native.MemoryHost:
		return space.HostPinned, nil
	case native.MemoryDevice:
		return space.Device, nil
	case native.MemoryManaged:
		return space.Unified, nil
	default:
		return space.Host, nil
	}
}

func (a *Accelerator) MemInfo() (device.MemInfo, error) {
	free, total, err := native.MemGetInfo()
	if err != nil {
		return device.MemInfo{}, wrap("mem info", err)
	}
	return device.MemInfo{Free: free, Total: total}, nil
}

func (a *Accelerator) Close() error {
	if err := a.stream.Synchronize(); err != nil {
		_ = a.stream.Destroy()
		return wrap("synchronize", err)
	}
	return wrap("stream destroy", a.stream.Destroy())
}

func memcpyKind(kind device.MemcpyKind) int {
	switch kind {
	case device.HostToDevice:
		return native.MemcpyHostToDevice
	case device.DeviceToHost:
		return native.MemcpyDeviceToHost
	case device.DeviceToDevice:
		return native.MemcpyDeviceToDevice
	default:
		return native.MemcpyHostToHost
	}
}
