package debug

import (
	"fmt"
	"os"
)

// Fatalf prints a diagnostic to stderr and aborts the process.
//
// Unlike Assert, this runs in both debug and release builds: it is the
// allocator's response to an unrecoverable condition (an OS primitive
// failing, or an internal invariant that should be structurally impossible
// to violate), not a debug-only sanity check.
func Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "goheap: fatal: "+format+"\n", args...)
	os.Exit(2)
}
