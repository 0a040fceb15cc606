//go:build !windows
// +build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyShutdown registers the signals that trigger graceful shutdown:
// SIGTERM from an orchestrator/supervisor, and Ctrl-C (SIGINT) at an
// interactive terminal.
func notifyShutdown(c chan<- os.Signal) {
	signal.Notify(c, syscall.SIGTERM, os.Interrupt)
}
