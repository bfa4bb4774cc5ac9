//go:build cuda

package cuda

import (
	"errors"
	"fmt"

	"github.com/samcharles93/memspace/internal/backend/cuda/native"
	"github.com/samcharles93/memspace/internal/device"
)

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cuda %s failed: %w", op, err)
}

// allocError maps cudaErrorMemoryAllocation onto device.ErrOutOfMemory.
func allocError(err error) error {
	if err == nil {
		return nil
	}
	var rtErr *native.Error
	if errors.As(err, &rtErr) && rtErr.OutOfMemory() {
		return fmt.Errorf("%w: %w", device.ErrOutOfMemory, err)
	}
	return wrap("alloc", err)
}
