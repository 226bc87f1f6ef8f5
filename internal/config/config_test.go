package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8420 {
		t.Errorf("expected port 8420, got %d", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("expected logLevel info, got %s", cfg.Server.LogLevel)
	}
	if cfg.Chains.Default != 46 {
		t.Errorf("expected default chain 46, got %d", cfg.Chains.Default)
	}
	if cfg.Preferences.Backend != "file" || cfg.Preferences.Namespace != "stakeclaw.preferences" {
		t.Errorf("unexpected preferences defaults: %+v", cfg.Preferences)
	}
	if cfg.RequestTimeout() != 15*time.Second || cfg.CloseTimeout() != 5*time.Second {
		t.Errorf("unexpected transport timeouts: %v / %v", cfg.RequestTimeout(), cfg.CloseTimeout())
	}
	if !cfg.Health.Enabled || cfg.Health.Schedule != "@every 5m" || cfg.HealthTimeout() != 10*time.Second {
		t.Errorf("unexpected health defaults: %+v", cfg.Health)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakeclaw.json")
	data := `{"server":{"port":9000,"dataDir":"` + filepath.ToSlash(filepath.Join(dir, "data")) + `","logLevel":"debug"},"preferences":{"backend":"sqlite"}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.LogLevel != "debug" || cfg.Preferences.Backend != "sqlite" {
		t.Errorf("fields not decoded: %+v", cfg)
	}
	// Unset sections keep their defaults.
	if cfg.Transport.RequestTimeoutSec != 15 || cfg.Chains.Default != 46 {
		t.Errorf("defaults lost: %+v %+v", cfg.Transport, cfg.Chains)
	}
	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakeclaw.toml")
	data := `
[server]
port = 8500
dataDir = "` + filepath.ToSlash(dir) + `"
logLevel = "warn"

[chains]
default = 44
abiDir = "/etc/stakeclaw/abi"

[health]
enabled = true
schedule = "*/10 * * * *"
timeoutSec = 3
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8500 || cfg.Server.LogLevel != "warn" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Chains.Default != 44 || cfg.Chains.ABIDir != "/etc/stakeclaw/abi" {
		t.Errorf("chains = %+v", cfg.Chains)
	}
	if cfg.Health.Schedule != "*/10 * * * *" || cfg.Health.TimeoutSec != 3 {
		t.Errorf("health = %+v", cfg.Health)
	}
	if cfg.Preferences.Backend != "file" {
		t.Errorf("preferences default lost: %+v", cfg.Preferences)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	tests := []struct {
		name string
		file string
		data string
		want string
	}{
		{"bad json", "c.json", `{"server":`, "parse config"},
		{"bad toml", "c.toml", "[server\nport=1", "parse config"},
		{"bad backend", "c.json", `{"preferences":{"backend":"redis"}}`, "preferences.backend"},
		{"bad level", "c.json", `{"server":{"logLevel":"loud"}}`, "log level"},
		{"bad schedule", "c.json", `{"health":{"enabled":true,"schedule":"whenever"}}`, "health.schedule"},
		{"bad port", "c.json", `{"server":{"port":70000}}`, "server.port"},
		{"zero timeout", "c.json", `{"transport":{"requestTimeoutSec":0}}`, "timeouts"},
		{"bad origin", "c.json", `{"api":{"allowedOrigins":["localhost:[8"]}}`, "api.allowedOrigins"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDisabledHealthSkipsScheduleCheck(t *testing.T) {
	if _, err := Parse([]byte(`{"health":{"enabled":false,"schedule":"nonsense"}}`), false); err != nil {
		t.Errorf("disabled health should not validate schedule: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.json", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := DefaultConfig()
			cfg.Server.DataDir = dir
			cfg.Server.Port = 9100
			cfg.Chains.File = "/srv/chains.yaml"
			cfg.Preferences.Backend = "sqlite"

			path := filepath.Join(dir, "nested", name)
			if err := cfg.Save(path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Server.Port != 9100 || got.Chains.File != "/srv/chains.yaml" || got.Preferences.Backend != "sqlite" {
				t.Errorf("round trip lost fields: %+v", got)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "": slog.LevelInfo,
		"warn": slog.LevelWarn, "warning": slog.LevelWarn, "error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("trace"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestPreferencesPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.DataDir = "/var/lib/stakeclaw"
	if got := cfg.PreferencesPath(); got != "" {
		t.Errorf("empty path = %q, want empty", got)
	}
	cfg.Preferences.Path = "prefs.db"
	if got := cfg.PreferencesPath(); got != filepath.Join("/var/lib/stakeclaw", "prefs.db") {
		t.Errorf("relative path = %q", got)
	}
	abs := filepath.Join(string(filepath.Separator), "tmp", "p.json")
	cfg.Preferences.Path = abs
	if got := cfg.PreferencesPath(); got != abs {
		t.Errorf("absolute path = %q", got)
	}
}

func writeConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
}

func TestReloadAppliesHotFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakeclaw.json")
	cfg := DefaultConfig()
	cfg.Server.DataDir = dir
	writeConfig(t, path, cfg)

	next := *cfg
	next.Server.LogLevel = "debug"
	next.Server.Port = 9999
	next.Health.TimeoutSec = 30
	writeConfig(t, path, &next)

	result, err := cfg.Reload(path)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(result.Changed) != 3 {
		t.Errorf("changed = %v", result.Changed)
	}
	if len(result.Applied) != 2 || len(result.Skipped) != 1 || result.Skipped[0] != "Server.Port" {
		t.Errorf("applied = %v, skipped = %v", result.Applied, result.Skipped)
	}
	snap := cfg.Snapshot()
	if snap.Server.LogLevel != "debug" || snap.Health.TimeoutSec != 30 {
		t.Errorf("hot fields not applied: %+v", snap)
	}
	if snap.Server.Port != 8420 {
		t.Errorf("restart-only field was applied: port %d", snap.Server.Port)
	}
	result.LogResult(newTestLogger())
}

func TestReloadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakeclaw.json")
	if err := os.WriteFile(path, []byte(`{"server":{"logLevel":"shout"}}`), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	if _, err := cfg.Reload(path); err == nil {
		t.Error("expected error")
	}
	if cfg.Server.LogLevel != "info" {
		t.Error("failed reload modified config")
	}
}

func TestHotReloadableFields(t *testing.T) {
	got := HotReloadableFields()
	if len(got) != 2 || got[0] != "Health.TimeoutSec" || got[1] != "Server.LogLevel" {
		t.Errorf("HotReloadableFields = %v", got)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakeclaw.json")
	cfg := DefaultConfig()
	cfg.Server.DataDir = dir
	writeConfig(t, path, cfg)

	reloaded := make(chan *ReloadResult, 1)
	w := NewWatcher(cfg, path, 20*time.Millisecond, newTestLogger(), func(r *ReloadResult) {
		select {
		case reloaded <- r:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	next := *cfg
	next.Server.LogLevel = "error"
	writeConfig(t, path, &next)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-reloaded:
		if len(r.Applied) != 1 || r.Applied[0] != "Server.LogLevel" {
			t.Errorf("applied = %v", r.Applied)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never reloaded")
	}
}
