// Package cleanup holds the functions to run before the process exits, such
// as closing the serial port and the log file.
package cleanup

import "sync"

var (
	registered []func()
	mu         sync.Mutex
)

// Register adds fn to the functions run by [Cleanup].
func Register(fn func()) {
	mu.Lock()
	defer mu.Unlock()
	registered = append(registered, fn)
}

// Cleanup runs the registered functions in reverse order of registration
// and forgets them, so calling Cleanup twice runs each function once.
func Cleanup() {
	mu.Lock()
	fns := registered
	registered = nil
	mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
