package usage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/require"
)

func TestReadStatus(t *testing.T) {
	t.Parallel()
	const status = `Name:	memspace
VmPeak:	  2048 kB
VmSize:	  1024 kB
VmLck:	     0 kB
VmHWM:	   512 kB
VmRSS:	   256 kB
Threads:	4
`
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "42"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "42", "status"), []byte(status), 0o644))

	fs, err := procfs.NewFS(root)
	require.NoError(t, err)
	p, err := fs.Proc(42)
	require.NoError(t, err)

	var s Snapshot
	require.NoError(t, readStatus(p, &s))
	require.Equal(t, float64(2048*1024), s[VmPeak])
	require.Equal(t, float64(1024*1024), s[VmSize])
	require.Equal(t, float64(512*1024), s[VmHWM])
	require.Equal(t, float64(256*1024), s[VmRSS])
}

func TestCollectHostReadsSelf(t *testing.T) {
	t.Parallel()
	var s Snapshot
	require.NoError(t, collectHost(&s))
	require.Positive(t, s[VmRSS])
	require.GreaterOrEqual(t, s[VmHWM], s[VmRSS])
	require.Positive(t, s[RAMTotal])
}
