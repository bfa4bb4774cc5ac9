package usage

import (
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

func collectHost(s *Snapshot) error {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return err
	}
	unit := uint64(info.Unit)
	total := uint64(info.Totalram) * unit
	free := uint64(info.Freeram) * unit
	s[RAMTotal] = float64(total)
	s[RAMUsed] = float64(total - free)

	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return err
	}
	self, err := fs.Self()
	if err != nil {
		return err
	}
	return readStatus(self, s)
}

// readStatus copies the Vm* figures of p's status file into s.
func readStatus(p procfs.Proc, s *Snapshot) error {
	st, err := p.NewStatus()
	if err != nil {
		return err
	}
	s[VmSize] = float64(st.VmSize)
	s[VmPeak] = float64(st.VmPeak)
	s[VmRSS] = float64(st.VmRSS)
	s[VmHWM] = float64(st.VmHWM)
	return nil
}
