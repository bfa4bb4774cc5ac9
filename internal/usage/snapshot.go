// Package usage collects per-process memory statistics and reduces them
// across the ranks of a job.
package usage

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/space"
)

// Field indexes a Snapshot.
type Field int

const (
	VmSize Field = iota
	VmPeak
	VmRSS
	VmHWM
	RAMUsed
	RAMTotal
	VRAMUsed
	VRAMTotal
	HostPoolSize
	HostPoolPeak
	DevicePoolSize
	DevicePoolPeak
	UnifiedPoolSize
	UnifiedPoolPeak
	PinnedPoolSize
	PinnedPoolPeak

	NumFields
)

var fieldNames = [NumFields]string{
	"vm_size", "vm_peak", "vm_rss", "vm_hwm",
	"ram_used", "ram_total", "vram_used", "vram_total",
	"host_pool_size", "host_pool_peak",
	"device_pool_size", "device_pool_peak",
	"unified_pool_size", "unified_pool_peak",
	"pinned_pool_size", "pinned_pool_peak",
}

func (f Field) String() string {
	if f < 0 || f >= NumFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// poolFields pairs each pooled space with its size field. The peak field
// follows directly.
var poolFields = []struct {
	space space.Physical
	size  Field
	label string
}{
	{space.Host, HostPoolSize, "PoolH"},
	{space.Device, DevicePoolSize, "PoolD"},
	{space.Unified, UnifiedPoolSize, "PoolU"},
	{space.HostPinned, PinnedPoolSize, "PoolP"},
}

// Snapshot holds byte counts for one process.
type Snapshot [NumFields]float64

// MarshalJSON writes the snapshot as an object keyed by field name.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumFields)
	for f := Field(0); f < NumFields; f++ {
		m[f.String()] = s[f]
	}
	return json.Marshal(m)
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = Snapshot{}
	for f := Field(0); f < NumFields; f++ {
		s[f] = m[f.String()]
	}
	return nil
}

// Source is what Collect reads beyond the operating system. A memory
// Handle satisfies it.
type Source interface {
	DeviceMemory() (device.MemInfo, bool)
	PoolUsage(p space.Physical) (current, peak uint64)
}

// Collect takes a snapshot of this process. src may be nil, in which case
// the device and pool fields stay zero.
func Collect(src Source) (Snapshot, error) {
	var s Snapshot
	if err := collectHost(&s); err != nil {
		return s, fmt.Errorf("host memory usage: %w", err)
	}
	fill(&s, src)
	return s, nil
}

func fill(s *Snapshot, src Source) {
	if src == nil {
		return
	}
	if info, ok := src.DeviceMemory(); ok {
		s[VRAMUsed] = float64(info.Used())
		s[VRAMTotal] = float64(info.Total)
	}
	for _, pf := range poolFields {
		cur, peak := src.PoolUsage(pf.space)
		s[pf.size] = float64(cur)
		s[pf.size+1] = float64(peak)
	}
}
