//go:build !unix

package umux

import "syscall"

// nullForegroundProbe is used on non-POSIX platforms, where process-group
// introspection is not available; it always reports no foreground process.
type nullForegroundProbe struct{}

func (nullForegroundProbe) Foreground(int) *ForegroundInfo { return nil }

func newForegroundProbe() ForegroundProbe {
	return nullForegroundProbe{}
}

// killProcessGroup has no process-group equivalent on non-POSIX platforms;
// callers fall back to signaling the child process directly.
func killProcessGroup(pid int, sig syscall.Signal) error {
	return syscall.ErrNotSupported
}
