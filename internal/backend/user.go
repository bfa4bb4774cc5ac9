package backend

import (
	"errors"
	"unsafe"

	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/space"
)

// AllocFunc and FreeFunc are caller-supplied device allocation hooks.
type (
	AllocFunc func(size int) (unsafe.Pointer, error)
	FreeFunc  func(ptr unsafe.Pointer) error
)

// UserBackend routes device allocations through registered hooks.
type UserBackend struct {
	acc   device.Accelerator
	alloc AllocFunc
	free  FreeFunc
}

func NewUser(acc device.Accelerator, alloc AllocFunc, free FreeFunc) (*UserBackend, error) {
	if alloc == nil || free == nil {
		return nil, errors.New("user device allocator needs both alloc and free hooks")
	}
	return &UserBackend{acc: acc, alloc: alloc, free: free}, nil
}

func (u *UserBackend) Name() string {
	return "user"
}

func (u *UserBackend) Space() space.Physical {
	return space.Device
}

func (u *UserBackend) Allocate(size int, zero bool) (unsafe.Pointer, error) {
	ptr, err := u.alloc(size)
	if err != nil || ptr == nil {
		return ptr, err
	}
	if zero {
		if err := Zero(u.acc, ptr, size, space.Device); err != nil {
			_ = u.free(ptr)
			return nil, err
		}
	}
	return ptr, nil
}

func (u *UserBackend) Free(ptr unsafe.Pointer) error {
	return u.free(ptr)
}
