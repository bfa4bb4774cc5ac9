package backend

import (
	"github.com/samcharles93/memspace/internal/backend/emulated"
	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/logger"
)

type AcceleratorOptions struct {
	// EmulatedCapacity sizes the emulated device memory in bytes.
	EmulatedCapacity uint64
	Logger           logger.Logger
}

// NewAccelerator opens the named runtime. "none" yields a nil accelerator;
// "auto" picks CUDA when it is compiled in and a device answers, and
// otherwise runs without an accelerator.
func NewAccelerator(name string, opts AcceleratorOptions) (device.Accelerator, error) {
	name, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	switch name {
	case None:
		return nil, nil
	case Emulated:
		return emulated.New(emulated.Options{Capacity: opts.EmulatedCapacity, Logger: opts.Logger}), nil
	case CUDA:
		return NewCUDA()
	default:
		if !Has(CUDA) {
			return nil, nil
		}
		acc, err := NewCUDA()
		if err != nil {
			opts.Logger.Debug("cuda unavailable, running host only", "error", err)
			return nil, nil
		}
		return acc, nil
	}
}
