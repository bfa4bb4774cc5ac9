package memory

import (
	"fmt"
	"unsafe"

	"github.com/samcharles93/memspace/internal/backend/host"
	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/space"
)

// Transfer is how the copy engine moves bytes between two spaces.
type Transfer struct {
	Kind device.MemcpyKind
	// Host transfers never touch the accelerator.
	Host bool
	// Async transfers are queued on the compute stream.
	Async bool
}

func hostSide(p space.Physical) bool {
	return p == space.Host || p == space.HostPinned
}

// ClassifyCopy picks the transfer for a copy into dst from src. It reports
// false when no transfer connects the two spaces.
func ClassifyCopy(dst, src space.Physical) (Transfer, bool) {
	switch {
	case hostSide(dst) && hostSide(src):
		return Transfer{Kind: device.HostToHost, Host: true}, true
	case (dst == space.Unified && (src == space.Device || src == space.Unified)) ||
		(src == space.Unified && dst == space.Device):
		return Transfer{Kind: device.DeviceToDevice}, true
	case dst == space.Unified && hostSide(src):
		return Transfer{Kind: device.HostToDevice}, true
	case src == space.Unified && hostSide(dst):
		return Transfer{Kind: device.DeviceToHost}, true
	case dst == space.Device && hostSide(src):
		return Transfer{Kind: device.HostToDevice}, true
	case src == space.Device && hostSide(dst):
		return Transfer{Kind: device.DeviceToHost}, true
	case dst == space.Device && src == space.Device:
		// device to device avoids a host stall
		return Transfer{Kind: device.DeviceToDevice, Async: true}, true
	default:
		return Transfer{}, false
	}
}

// Copy moves size bytes from src in srcL to dst in dstL.
func (h *Handle) Copy(dst, src unsafe.Pointer, size int, dstL, srcL space.Logical) {
	h.CopyIn(dst, h.Resolve(dstL), src, h.Resolve(srcL), size)
}

// CopyIn moves size bytes between physical spaces. Degenerate copies are
// skipped: zero size, identical pointers, or a nil pointer (with a warning).
func (h *Handle) CopyIn(dst unsafe.Pointer, dstSpace space.Physical, src unsafe.Pointer, srcSpace space.Physical, size int) {
	if size <= 0 {
		return
	}
	if dst == nil || src == nil {
		h.warn(fmt.Errorf("%w: copy of %d bytes with dst=%p src=%p", ErrNullPointer, size, dst, src))
		return
	}
	if dst == src {
		return
	}
	if !h.checkLocation("copy destination", dst, dstSpace) || !h.checkLocation("copy source", src, srcSpace) {
		return
	}

	t, ok := ClassifyCopy(dstSpace, srcSpace)
	if !ok || (!t.Host && h.acc == nil) {
		h.report(fmt.Errorf("%w: copy into %s from %s", ErrUnknownLocation, dstSpace.Label(), srcSpace.Label()))
		return
	}

	var err error
	switch {
	case t.Host:
		host.Copy(dst, src, size)
	case t.Async:
		err = h.acc.MemcpyAsync(dst, src, size, t.Kind)
	default:
		err = h.acc.Memcpy(dst, src, size, t.Kind)
	}
	if err != nil {
		h.report(fmt.Errorf("copy %d bytes %s: %w", size, t.Kind, err))
	}
}

// Set fills count bytes at ptr with value and returns ptr.
func (h *Handle) Set(ptr unsafe.Pointer, value byte, count int, l space.Logical) unsafe.Pointer {
	return h.SetIn(ptr, value, count, h.Resolve(l))
}

func (h *Handle) SetIn(ptr unsafe.Pointer, value byte, count int, p space.Physical) unsafe.Pointer {
	if count <= 0 {
		return ptr
	}
	if ptr == nil {
		h.warn(fmt.Errorf("%w: set of %d bytes", ErrNullPointer, count))
		return ptr
	}
	if !h.checkLocation("set", ptr, p) {
		return ptr
	}

	switch {
	case hostSide(p):
		host.Fill(ptr, value, count)
	case (p == space.Device || p == space.Unified) && h.acc != nil:
		if err := h.acc.Memset(ptr, value, count); err != nil {
			h.report(fmt.Errorf("set %d bytes in %s: %w", count, p.Label(), err))
		}
	default:
		h.report(fmt.Errorf("%w: set in %s", ErrUnknownLocation, p.Label()))
	}
	return ptr
}

// PrefetchTo migrates unified memory to the physical space l resolves to.
// Only Device and Host are prefetch targets; any other resolution, or a
// handle without an accelerator, is a no-op.
func (h *Handle) PrefetchTo(ptr unsafe.Pointer, size int, l space.Logical) {
	if size <= 0 || ptr == nil || h.acc == nil {
		return
	}
	var toDevice bool
	switch h.Resolve(l) {
	case space.Device:
		toDevice = true
	case space.Host:
	default:
		return
	}
	if !h.checkLocation("prefetch", ptr, space.Unified) {
		return
	}
	if err := h.acc.Prefetch(ptr, size, toDevice); err != nil {
		h.report(fmt.Errorf("prefetch %d bytes: %w", size, err))
	}
}
