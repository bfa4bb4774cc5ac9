//go:build assert

package debug

import "fmt"

// Enabled is true in builds with the assert tag.
const Enabled = true

// Assert panics with msg if cond is false.
//
// msg must be a string, func() string or fmt.Stringer.
func Assert(cond bool, msg any) {
	if !cond {
		panic(stringValue(msg))
	}
}

func stringValue(v any) string {
	switch a := v.(type) {
	case func() string:
		return a()
	case string:
		return a
	case fmt.Stringer:
		return a.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
