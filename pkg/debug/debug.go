// Package debug provides conditional debug logging for arbor.
//
// Debug logging is enabled by setting the ARBOR_DEBUG environment variable:
//
//	ARBOR_DEBUG=1 arbor ~/src
//
// Because the TUI owns the terminal, messages go to the file named by
// ARBOR_DEBUG_FILE when set, and to stderr otherwise.
// When disabled (default), all debug functions are no-ops.
//
// Usage:
//
//	import "github.com/vanderheijden86/arbor/pkg/debug"
//
//	func load() {
//	    defer debug.LogEnterExit("load")()
//	    debug.Log("listing %s", path)
//	}
package debug

import (
	"io"
	"log"
	"os"
	"time"
)

var (
	// enabled is true when ARBOR_DEBUG env var is set
	enabled bool
	// logger writes with [ARBOR_DEBUG] prefix
	logger *log.Logger
)

const prefix = "[ARBOR_DEBUG] "

func init() {
	if os.Getenv("ARBOR_DEBUG") != "" {
		enabled = true
		logger = log.New(openOutput(), prefix, log.Ltime|log.Lmicroseconds)
	}
}

func openOutput() io.Writer {
	path := os.Getenv("ARBOR_DEBUG_FILE")
	if path == "" {
		return os.Stderr
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stderr
	}
	return f
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	return enabled
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	enabled = e
	if e && logger == nil {
		logger = log.New(openOutput(), prefix, log.Ltime|log.Lmicroseconds)
	}
}

// SetOutput redirects debug output, mainly for tests.
func SetOutput(w io.Writer) {
	logger = log.New(w, prefix, 0)
}

// Log writes a debug message if debug logging is enabled.
// Uses printf-style formatting.
func Log(format string, args ...any) {
	if !enabled {
		return
	}
	logger.Printf(format, args...)
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	if !enabled {
		return
	}
	logger.Printf("%s took %v", name, d)
}

// LogIf writes a debug message only if the condition is true.
func LogIf(cond bool, format string, args ...any) {
	if !enabled || !cond {
		return
	}
	logger.Printf(format, args...)
}

// LogEnterExit logs function entry and exit with timing.
// Usage:
//
//	func myFunc() {
//	    defer debug.LogEnterExit("myFunc")()
//	    // ...
//	}
func LogEnterExit(name string) func() {
	if !enabled {
		return func() {}
	}
	logger.Printf("-> %s", name)
	start := time.Now()
	return func() {
		logger.Printf("<- %s (%v)", name, time.Since(start))
	}
}

// Dump logs a value with its type for debugging complex structures.
func Dump(name string, v any) {
	if !enabled {
		return
	}
	logger.Printf("%s: %T = %+v", name, v, v)
}
