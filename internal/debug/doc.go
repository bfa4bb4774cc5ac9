// Package debug provides assertions that are compiled in only with the
// assert build tag.
package debug
