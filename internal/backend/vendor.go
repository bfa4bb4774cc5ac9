package backend

import (
	"fmt"
	"unsafe"

	"github.com/samcharles93/memspace/internal/backend/host"
	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/space"
)

// VendorBackend allocates through the accelerator runtime.
type VendorBackend struct {
	acc   device.Accelerator
	space space.Physical
}

func NewVendor(acc device.Accelerator, p space.Physical) (*VendorBackend, error) {
	if acc == nil {
		return nil, fmt.Errorf("%s memory needs an accelerator", p)
	}
	switch p {
	case space.Device, space.Unified, space.HostPinned:
		return &VendorBackend{acc: acc, space: p}, nil
	default:
		return nil, fmt.Errorf("accelerator runtime does not allocate %s memory", p)
	}
}

func (v *VendorBackend) Name() string {
	return Vendor
}

func (v *VendorBackend) Space() space.Physical {
	return v.space
}

func (v *VendorBackend) Allocate(size int, zero bool) (unsafe.Pointer, error) {
	var (
		ptr unsafe.Pointer
		err error
	)
	switch v.space {
	case space.Device:
		ptr, err = v.acc.AllocDevice(size)
	case space.Unified:
		ptr, err = v.acc.AllocManaged(size)
		if err == nil {
			// managed memory starts out resident on the device
			err = v.acc.Prefetch(ptr, size, true)
		}
	default:
		ptr, err = v.acc.AllocPinned(size)
	}
	if err != nil {
		return nil, err
	}
	if zero {
		if err := Zero(v.acc, ptr, size, v.space); err != nil {
			_ = v.Free(ptr)
			return nil, err
		}
	}
	return ptr, nil
}

func (v *VendorBackend) Free(ptr unsafe.Pointer) error {
	switch v.space {
	case space.Device:
		return v.acc.FreeDevice(ptr)
	case space.Unified:
		return v.acc.FreeManaged(ptr)
	default:
		return v.acc.FreePinned(ptr)
	}
}

// Zero clears n bytes at ptr with the primitive appropriate for p.
func Zero(acc device.Accelerator, ptr unsafe.Pointer, n int, p space.Physical) error {
	if (p == space.Device || p == space.Unified) && acc != nil {
		return acc.Memset(ptr, 0, n)
	}
	host.Fill(ptr, 0, n)
	return nil
}
