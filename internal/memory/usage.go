package memory

import (
	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/space"
)

// PoolUsage reports the bytes currently held and the high-water mark of the
// pool or cache serving p. Spaces served directly report zero.
func (h *Handle) PoolUsage(p space.Physical) (current, peak uint64) {
	if !p.IsValid() {
		return 0, 0
	}
	h.mu.Lock()
	pl, c := h.poolRefs[p], h.caching[p]
	h.mu.Unlock()

	if pl != nil {
		st := pl.Stats()
		return st.CurrentSize, st.HighWatermark
	}
	if c != nil {
		st := c.Stats()
		return st.LiveBytes + st.CachedBytes, st.PeakBytes
	}
	return 0, 0
}

// DeviceMemory reports accelerator memory, or false without an accelerator.
func (h *Handle) DeviceMemory() (device.MemInfo, bool) {
	if h.acc == nil {
		return device.MemInfo{}, false
	}
	info, err := h.acc.MemInfo()
	if err != nil {
		h.log.Warn("device memory query failed", "error", err)
		return device.MemInfo{}, false
	}
	return info, true
}
