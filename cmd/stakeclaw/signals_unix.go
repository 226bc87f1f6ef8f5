//go:build !windows

package main

import (
	"context"
	"os"
	"syscall"

	"github.com/clawinfra/stakeclaw/internal/cli"
)

// getShutdownSignals returns the signals to listen for on Unix systems
func getShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1}
}

// handlePlatformSignal handles platform-specific signals, returns true if should continue loop
func handlePlatformSignal(sig os.Signal, app *cli.App, configPath string) bool {
	switch sig {
	case syscall.SIGHUP:
		app.Logger.Info("reload signal received", "path", configPath)
		res, err := app.Config.Reload(configPath)
		if err != nil {
			app.Logger.Error("config reload failed", "error", err)
			return true
		}
		res.LogResult(app.Logger)
		app.ApplyReload(res)
		return true
	case syscall.SIGUSR1:
		if app.Monitor != nil {
			app.Logger.Info("health probe requested")
			go app.Monitor.RunNow(context.Background())
		}
		return true
	}
	return false
}
