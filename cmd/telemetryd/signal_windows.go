//go:build windows
// +build windows

package main

import (
	"os"
	"os/signal"
)

// notifyShutdown on Windows only has Ctrl-C/Ctrl-Break to work with;
// syscall.SIGTERM doesn't exist on this platform.
func notifyShutdown(c chan<- os.Signal) {
	signal.Notify(c, os.Interrupt)
}
