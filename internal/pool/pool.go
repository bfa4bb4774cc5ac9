// Package pool implements the caching and pooling allocators that sit
// between the memory layer and the raw backends.
package pool

import (
	"errors"
	"unsafe"

	"github.com/samcharles93/memspace/internal/space"
)

var (
	ErrInvalidConfig = errors.New("pool: invalid configuration")
	ErrUnknownBlock  = errors.New("pool: pointer was not allocated here")
	ErrExists        = errors.New("pool: name already registered")
	ErrNameTooLong   = errors.New("pool: name too long")
)

// MaxNameLen bounds pool names.
const MaxNameLen = 64

// Source is the raw allocator a cache or pool draws from.
type Source interface {
	Space() space.Physical
	Allocate(size int, zero bool) (unsafe.Pointer, error)
	Free(ptr unsafe.Pointer) error
}

// ZeroFunc clears n bytes at ptr with whatever primitive suits the memory.
type ZeroFunc func(ptr unsafe.Pointer, n int) error

func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}
