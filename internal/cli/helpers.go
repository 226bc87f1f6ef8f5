package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/config"
	"github.com/clawinfra/stakeclaw/internal/contracts"
	"github.com/clawinfra/stakeclaw/internal/prefs"
)

// Command output. Tests swap these.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// LoadConfig loads configPath, or the defaults when the file does not exist.
func LoadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// getLogger returns the logger for one-shot commands. It writes to stderr so
// command output stays parseable.
func getLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// LoadRegistry returns the chain table named by cfg, or the embedded one.
func LoadRegistry(cfg *config.Config) (*chains.Registry, error) {
	if cfg.Chains.File == "" {
		return chains.Default()
	}
	return chains.Load(cfg.Chains.File)
}

// ABISource returns the ABI lookup order for cfg: the override directory
// first, then the embedded files.
func ABISource(cfg *config.Config) contracts.ABISource {
	if cfg.Chains.ABIDir == "" {
		return contracts.Embedded()
	}
	return contracts.Chain(contracts.Dir(cfg.Chains.ABIDir), contracts.Embedded())
}

// OpenPreferences opens the configured preference backend.
func OpenPreferences(cfg *config.Config, logger *slog.Logger) (*prefs.Store, error) {
	backend, err := prefs.Open(cfg.Preferences.Backend, cfg.PreferencesPath(), cfg.Server.DataDir, cfg.Preferences.Namespace)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	return prefs.New(backend, logger), nil
}

func parseChainID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}

// splitArgs separates positional arguments from flags so that flags may
// follow them, as in "chain show 46 --json".
func splitArgs(args []string, boolFlags map[string]bool) (positional, flags []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)
			name := trimDashes(arg)
			if !boolFlags[name] && !hasValue(arg) && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
			continue
		}
		positional = append(positional, arg)
	}
	return positional, flags
}

func trimDashes(s string) string {
	name, _, _ := strings.Cut(strings.TrimLeft(s, "-"), "=")
	return name
}

func hasValue(flagArg string) bool { return strings.Contains(flagArg, "=") }

func errorf(format string, args ...any) int {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	return 1
}
