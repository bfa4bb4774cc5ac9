package memory

import "github.com/samcharles93/memspace/internal/debug"

// assertBuild reports whether invariant violations panic in this build.
func assertBuild() bool {
	return debug.Enabled
}
