// Package emulated implements a software accelerator. Device, managed and
// pinned allocations are separate anonymous mappings tracked by address
// range, and asynchronous work runs on a single goroutine-backed stream.
// It gives every memory space real, distinguishable addresses on machines
// without a GPU.
package emulated

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/logger"
	"github.com/samcharles93/memspace/internal/space"
)

const (
	Name = "emulated"

	// DefaultCapacity is the emulated device memory size.
	DefaultCapacity = 1 << 30
)

type Options struct {
	// Capacity bounds device plus managed memory. Zero means DefaultCapacity.
	Capacity uint64
	Logger   logger.Logger
}

// Stats counts runtime calls, mostly for tests and diagnostics.
type Stats struct {
	AsyncCopies int
	SyncCopies  int
	Memsets     int
	Prefetches  int
}

type Accelerator struct {
	log      logger.Logger
	capacity uint64
	stream   *stream

	mu     sync.Mutex
	reg    registry
	used   uint64
	stats  Stats
	closed bool
}

var _ device.Accelerator = (*Accelerator)(nil)

func New(opts Options) *Accelerator {
	if opts.Capacity == 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Accelerator{
		log:      opts.Logger.With("component", "emulated"),
		capacity: opts.Capacity,
		stream:   newStream(64),
	}
}

func (a *Accelerator) Name() string {
	return Name
}

func pageRound(n int) int {
	ps := unix.Getpagesize()
	return (n + ps - 1) &^ (ps - 1)
}

func (a *Accelerator) alloc(size int, where space.Physical) (unsafe.Pointer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("emulated %s alloc size must be > 0", where)
	}
	n := pageRound(size)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, device.ErrClosed
	}
	counted := where == space.Device || where == space.Unified
	if counted && a.used+uint64(n) > a.capacity {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use", device.ErrOutOfMemory, size, a.used, a.capacity)
	}

	data, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", device.ErrOutOfMemory, n, err)
	}
	r := &region{data: data, space: where, resident: where}
	if where == space.HostPinned {
		if err := unix.Mlock(data); err != nil {
			a.log.Debug("mlock failed, pinned pages stay pageable", "bytes", n, "error", err)
		} else {
			r.locked = true
		}
	}
	a.reg.insert(r)
	if counted {
		a.used += uint64(n)
	}
	return unsafe.Pointer(&data[0]), nil
}

func (a *Accelerator) free(ptr unsafe.Pointer, where space.Physical) error {
	if ptr == nil {
		return nil
	}
	// Freeing waits for outstanding stream work, like the vendor runtimes do.
	if err := a.stream.synchronize(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.reg.find(uintptr(ptr))
	if r == nil || r.base() != uintptr(ptr) || r.space != where {
		return fmt.Errorf("%w: free %p as %s", device.ErrBadPointer, ptr, where)
	}
	a.reg.remove(uintptr(ptr))
	if r.space == space.Device || r.space == space.Unified {
		a.used -= uint64(len(r.data))
	}
	if r.locked {
		_ = unix.Munlock(r.data)
	}
	return unix.Munmap(r.data)
}

func (a *Accelerator) AllocDevice(size int) (unsafe.Pointer, error) {
	return a.alloc(size, space.Device)
}

func (a *Accelerator) FreeDevice(ptr unsafe.Pointer) error {
	return a.free(ptr, space.Device)
}

func (a *Accelerator) AllocManaged(size int) (unsafe.Pointer, error) {
	return a.alloc(size, space.Unified)
}

func (a *Accelerator) FreeManaged(ptr unsafe.Pointer) error {
	return a.free(ptr, space.Unified)
}

func (a *Accelerator) AllocPinned(size int) (unsafe.Pointer, error) {
	return a.alloc(size, space.HostPinned)
}

func (a *Accelerator) FreePinned(ptr unsafe.Pointer) error {
	return a.free(ptr, space.HostPinned)
}

// check verifies that [ptr, ptr+n) lies inside one region whose space is
// device-side when deviceSide is set.
func (a *Accelerator) check(ptr unsafe.Pointer, n int, deviceSide bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.reg.find(uintptr(ptr))
	if !deviceSide {
		if r != nil && !r.contains(uintptr(ptr), n) {
			return fmt.Errorf("%w: %p+%d overruns %s allocation", device.ErrBadPointer, ptr, n, r.space)
		}
		return nil
	}
	if r == nil || (r.space != space.Device && r.space != space.Unified) {
		return fmt.Errorf("%w: %p is not device memory", device.ErrBadPointer, ptr)
	}
	if !r.contains(uintptr(ptr), n) {
		return fmt.Errorf("%w: %p+%d overruns %s allocation", device.ErrBadPointer, ptr, n, r.space)
	}
	return nil
}

func (a *Accelerator) checkCopy(dst, src unsafe.Pointer, n int, kind device.MemcpyKind) error {
	dstDev := kind == device.HostToDevice || kind == device.DeviceToDevice
	srcDev := kind == device.DeviceToHost || kind == device.DeviceToDevice
	if err := a.check(dst, n, dstDev); err != nil {
		return fmt.Errorf("%s destination: %w", kind, err)
	}
	if err := a.check(src, n, srcDev); err != nil {
		return fmt.Errorf("%s source: %w", kind, err)
	}
	return nil
}

func move(dst, src unsafe.Pointer, n int) {
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}

func (a *Accelerator) Memset(ptr unsafe.Pointer, value byte, n int) error {
	if n <= 0 {
		return nil
	}
	if err := a.check(ptr, n, true); err != nil {
		return fmt.Errorf("memset: %w", err)
	}
	a.count(func(s *Stats) { s.Memsets++ })
	a.stream.enqueue(func() error {
		b := unsafe.Slice((*byte)(ptr), n)
		for i := range b {
			b[i] = value
		}
		return nil
	})
	return a.stream.synchronize()
}

func (a *Accelerator) Memcpy(dst, src unsafe.Pointer, n int, kind device.MemcpyKind) error {
	if n <= 0 {
		return nil
	}
	if err := a.checkCopy(dst, src, n, kind); err != nil {
		return err
	}
	if err := a.stream.synchronize(); err != nil {
		return err
	}
	a.count(func(s *Stats) { s.SyncCopies++ })
	move(dst, src, n)
	return nil
}

func (a *Accelerator) MemcpyAsync(dst, src unsafe.Pointer, n int, kind device.MemcpyKind) error {
	if n <= 0 {
		return nil
	}
	if err := a.checkCopy(dst, src, n, kind); err != nil {
		return err
	}
	a.count(func(s *Stats) { s.AsyncCopies++ })
	a.stream.enqueue(func() error {
		move(dst, src, n)
		return nil
	})
	return nil
}

func (a *Accelerator) Prefetch(ptr unsafe.Pointer, n int, toDevice bool) error {
	if n <= 0 {
		return nil
	}
	a.mu.Lock()
	r := a.reg.find(uintptr(ptr))
	a.mu.Unlock()
	if r == nil || r.space != space.Unified || !r.contains(uintptr(ptr), n) {
		return fmt.Errorf("prefetch: %w: %p is not managed memory", device.ErrBadPointer, ptr)
	}
	target := space.Host
	if toDevice {
		target = space.Device
	}
	a.count(func(s *Stats) { s.Prefetches++ })
	a.stream.enqueue(func() error {
		a.mu.Lock()
		r.resident = target
		a.mu.Unlock()
		return nil
	})
	return nil
}

func (a *Accelerator) Synchronize() error {
	return a.stream.synchronize()
}

func (a *Accelerator) PointerSpace(ptr unsafe.Pointer) (space.Physical, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r := a.reg.find(uintptr(ptr)); r != nil {
		return r.space, nil
	}
	return space.Host, nil
}

// Residency reports where managed memory at ptr was last prefetched to.
func (a *Accelerator) Residency(ptr unsafe.Pointer) space.Physical {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r := a.reg.find(uintptr(ptr)); r != nil {
		return r.resident
	}
	return space.Host
}

func (a *Accelerator) MemInfo() (device.MemInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return device.MemInfo{Free: a.capacity - a.used, Total: a.capacity}, nil
}

func (a *Accelerator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Accelerator) count(f func(*Stats)) {
	a.mu.Lock()
	f(&a.stats)
	a.mu.Unlock()
}

// Close drains the stream and unmaps anything still allocated.
func (a *Accelerator) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	err := a.stream.close()

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.reg.regions {
		if r.locked {
			_ = unix.Munlock(r.data)
		}
		if uerr := unix.Munmap(r.data); uerr != nil && err == nil {
			err = uerr
		}
	}
	a.reg.regions = nil
	a.used = 0
	return err
}
