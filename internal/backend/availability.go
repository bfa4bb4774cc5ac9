package backend

import "strings"

// Available returns a comma-separated list of available accelerators.
func Available() string {
	entries := []string{None, Emulated}
	if Has(CUDA) {
		entries = append(entries, CUDA)
	}
	return strings.Join(entries, ",")
}
