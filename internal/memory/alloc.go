package memory

import (
	"errors"
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/samcharles93/memspace/internal/backend"
	"github.com/samcharles93/memspace/internal/backend/host"
	"github.com/samcharles93/memspace/internal/pool"
	"github.com/samcharles93/memspace/internal/space"
)

// Allocate returns size bytes in the space l resolves to. A zero size
// yields nil. Running out of memory aborts the job.
func (h *Handle) Allocate(size int, l space.Logical) unsafe.Pointer {
	return h.AllocateIn(size, h.Resolve(l), false)
}

// ZeroedAllocate returns count*elemSize zeroed bytes.
func (h *Handle) ZeroedAllocate(count, elemSize int, l space.Logical) unsafe.Pointer {
	if count < 0 || elemSize < 0 {
		h.report(fmt.Errorf("%w: negative element count or size", ErrInvalidArgument))
		return nil
	}
	hi, lo := bits.Mul(uint(count), uint(elemSize))
	if hi != 0 || lo > uint(maxSize) {
		h.outOfMemory(maxSize, fmt.Errorf("%d elements of %d bytes overflow", count, elemSize))
		return nil
	}
	return h.AllocateIn(int(lo), h.Resolve(l), true)
}

const maxSize = int(^uint(0) >> 1)

// AllocateIn allocates directly in a physical space.
func (h *Handle) AllocateIn(size int, p space.Physical, zero bool) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	if size < 0 {
		h.report(fmt.Errorf("%w: allocation size %d", ErrInvalidArgument, size))
		return nil
	}
	b, err := h.backendFor(p)
	if err != nil {
		if errors.Is(err, ErrUnknownLocation) {
			h.report(err)
		}
		h.outOfMemory(size, err)
		return nil
	}
	ptr, err := b.Allocate(size, zero)
	if err == nil && ptr == nil {
		err = errors.New("backend returned nil")
	}
	if err != nil {
		h.outOfMemory(size, err)
		return nil
	}
	h.checkLocation("allocate", ptr, p)
	return ptr
}

// Free releases ptr from the space l resolves to. nil is a no-op.
func (h *Handle) Free(ptr unsafe.Pointer, l space.Logical) {
	h.FreeIn(ptr, h.Resolve(l))
}

func (h *Handle) FreeIn(ptr unsafe.Pointer, p space.Physical) {
	if ptr == nil {
		return
	}
	if !h.checkLocation("free", ptr, p) {
		return
	}
	b, err := h.backendFor(p)
	if err != nil {
		h.report(err)
		return
	}
	if err := b.Free(ptr); err != nil {
		h.violate(fmt.Errorf("free %p from %s: %w", ptr, p.Label(), err))
	}
}

// Reallocate resizes host memory. A zero size frees ptr and returns nil; a
// nil ptr allocates. Any other space is a fatal usage error.
func (h *Handle) Reallocate(ptr unsafe.Pointer, size int, l space.Logical) unsafe.Pointer {
	p := h.Resolve(l)
	if size == 0 {
		h.FreeIn(ptr, p)
		return nil
	}
	if ptr == nil {
		return h.AllocateIn(size, p, false)
	}
	if p != space.Host {
		h.fatal(fmt.Errorf("%w: got %s, use ReallocateSized", ErrReallocSpace, p.Label()))
		return nil
	}
	if size < 0 {
		h.report(fmt.Errorf("%w: reallocation size %d", ErrInvalidArgument, size))
		return nil
	}
	if !h.checkLocation("reallocate", ptr, p) {
		return nil
	}

	b, err := h.backendFor(p)
	if err != nil {
		h.outOfMemory(size, err)
		return nil
	}
	var out unsafe.Pointer
	switch rb := b.(type) {
	case backend.Reallocator:
		out, err = rb.Reallocate(ptr, size)
	case *pool.Pool:
		out, err = h.poolReallocate(rb, ptr, size)
	default:
		err = fmt.Errorf("%s backend cannot reallocate", b.Name())
	}
	if err == nil && out == nil {
		err = errors.New("backend returned nil")
	}
	if err != nil {
		h.outOfMemory(size, err)
		return nil
	}
	return out
}

func (h *Handle) poolReallocate(p *pool.Pool, ptr unsafe.Pointer, size int) (unsafe.Pointer, error) {
	old, ok := p.SizeOf(ptr)
	if !ok {
		return nil, fmt.Errorf("%w: %p", pool.ErrUnknownBlock, ptr)
	}
	out, err := p.Allocate(size, false)
	if err != nil {
		return nil, err
	}
	host.Copy(out, ptr, min(old, size))
	return out, p.Free(ptr)
}

// ReallocateSized resizes memory in any space by allocating, copying the
// common prefix and freeing the old block.
func (h *Handle) ReallocateSized(ptr unsafe.Pointer, oldSize, newSize int, l space.Logical) unsafe.Pointer {
	p := h.Resolve(l)
	if newSize == 0 {
		h.FreeIn(ptr, p)
		return nil
	}
	if ptr == nil {
		return h.AllocateIn(newSize, p, false)
	}
	if oldSize == newSize {
		return ptr
	}
	out := h.AllocateIn(newSize, p, false)
	if out == nil {
		return nil
	}
	h.CopyIn(out, p, ptr, p, min(oldSize, newSize))
	h.FreeIn(ptr, p)
	return out
}
