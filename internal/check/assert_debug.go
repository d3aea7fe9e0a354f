//go:build debug

// Package check provides invariant assertions that compile away in
// release builds.
package check

import "fmt"

// Assert panics if cond is false. Active only under the debug build tag.
func Assert(cond bool, msg string) {
	if !cond {
		panic("invariant violated: " + msg)
	}
}

// Assertf is Assert with a formatted message.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("invariant violated: " + fmt.Sprintf(format, args...))
	}
}
