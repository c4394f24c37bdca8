package maskfx

import (
	"fmt"
	"os"
)

// debug enables diagnostic output on stderr. Off by default.
var debug bool

// SetDebugMode enables or disables diagnostic logging to stderr: load
// failures, skipped filters, and per-frame pass counts.
func SetDebugMode(enabled bool) {
	debug = enabled
}

// debugf prints a "[maskfx]"-prefixed line to stderr when debug mode is on.
func debugf(format string, args ...any) {
	if !debug {
		return
	}
	_, _ = fmt.Fprintf(os.Stderr, "[maskfx] "+format+"\n", args...)
}
