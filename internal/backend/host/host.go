// Package host provides the plain host allocator and host-side memory
// primitives.
package host

import (
	"fmt"
	"sync"
	"unsafe"

	"modernc.org/memory"

	"github.com/samcharles93/memspace/internal/space"
)

// System is the host system allocator. It hands out memory outside the Go
// heap so pointers stay valid and untracked by the garbage collector.
type System struct {
	mu    sync.Mutex
	alloc memory.Allocator
}

func NewSystem() *System {
	return &System{}
}

func (s *System) Name() string {
	return "system"
}

func (s *System) Space() space.Physical {
	return space.Host
}

func (s *System) Allocate(size int, zero bool) (unsafe.Pointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		ptr unsafe.Pointer
		err error
	)
	if zero {
		ptr, err = s.alloc.UnsafeCalloc(size)
	} else {
		ptr, err = s.alloc.UnsafeMalloc(size)
	}
	if err != nil {
		return nil, fmt.Errorf("host alloc %d bytes: %w", size, err)
	}
	return ptr, nil
}

func (s *System) Free(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alloc.UnsafeFree(ptr)
}

func (s *System) Reallocate(ptr unsafe.Pointer, size int) (unsafe.Pointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.alloc.UnsafeRealloc(ptr, size)
	if err != nil {
		return nil, fmt.Errorf("host realloc %d bytes: %w", size, err)
	}
	return p, nil
}

// UsableSize reports how many bytes are usable at ptr, which may exceed the
// requested size.
func (s *System) UsableSize(ptr unsafe.Pointer) int {
	if ptr == nil {
		return 0
	}
	return memory.UnsafeUsableSize(ptr)
}

// Close returns every page to the operating system. Outstanding pointers
// become invalid.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alloc.Close()
}

// Fill sets n bytes at ptr to value.
func Fill(ptr unsafe.Pointer, value byte, n int) {
	if n <= 0 {
		return
	}
	b := unsafe.Slice((*byte)(ptr), n)
	if value == 0 {
		clear(b)
		return
	}
	for i := range b {
		b[i] = value
	}
}

// Copy moves n bytes from src to dst. The ranges may overlap.
func Copy(dst, src unsafe.Pointer, n int) {
	if n <= 0 {
		return
	}
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}
