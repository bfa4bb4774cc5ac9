//go:build !linux

package usage

import "runtime"

// Without procfs the Go runtime's own accounting stands in for the
// process figures. Peaks equal current values.
func collectHost(s *Snapshot) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s[VmSize] = float64(ms.Sys)
	s[VmPeak] = float64(ms.Sys)
	s[VmRSS] = float64(ms.Sys - ms.HeapReleased)
	s[VmHWM] = s[VmRSS]
	return nil
}
