//go:build !windows

package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/clawinfra/stakeclaw/internal/cli"
	"github.com/clawinfra/stakeclaw/internal/config"
)

func newTestApp(t *testing.T) (*cli.App, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.DataDir = filepath.Join(dir, "data")
	cfg.API.Enabled = false
	path := filepath.Join(dir, "stakeclaw.json")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	app, err := cli.NewApp(loaded, newTestLogger(), "test")
	if err != nil {
		t.Fatal(err)
	}
	app.LogLevel = new(slog.LevelVar)
	t.Cleanup(func() { _ = app.Close(t.Context()) })
	return app, path
}

func TestSIGHUPReloadsConfig(t *testing.T) {
	app, path := newTestApp(t)

	next := app.Config.Snapshot()
	next.Server.LogLevel = "debug"
	next.Server.Port = 9999
	if err := next.Save(path); err != nil {
		t.Fatal(err)
	}

	if !handlePlatformSignal(syscall.SIGHUP, app, path) {
		t.Fatal("SIGHUP should not shut down")
	}
	if app.LogLevel.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", app.LogLevel.Level())
	}
	if app.Config.Snapshot().Server.Port == 9999 {
		t.Error("port is not hot-reloadable but changed")
	}
	if handlePlatformSignal(syscall.SIGTERM, app, path) {
		t.Error("SIGTERM should shut down")
	}
}

func TestWaitForShutdown(t *testing.T) {
	app, path := newTestApp(t)

	go func() {
		time.Sleep(100 * time.Millisecond)
		p, _ := os.FindProcess(os.Getpid())
		_ = p.Signal(syscall.SIGINT)
	}()

	stopped := false
	if err := waitForShutdown(app, path, func() { stopped = true }); err != nil {
		t.Errorf("waitForShutdown: %v", err)
	}
	if !stopped {
		t.Error("services were not stopped")
	}
}
