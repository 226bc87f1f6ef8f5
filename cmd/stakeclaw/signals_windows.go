//go:build windows

package main

import (
	"os"
	"syscall"

	"github.com/clawinfra/stakeclaw/internal/cli"
)

func getShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// handlePlatformSignal never continues on Windows: every signal shuts down.
func handlePlatformSignal(os.Signal, *cli.App, string) bool { return false }
