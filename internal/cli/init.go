package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/clawinfra/stakeclaw/internal/config"
)

// InitCommand handles the 'stakeclaw init' subcommand
func InitCommand(args []string) int {
	fs := flag.NewFlagSet("stakeclaw init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outputPath := fs.String("output", "stakeclaw.toml", "Output config file path (.toml or .json)")
	dataDir := fs.String("data-dir", "./data", "Directory for preferences and state")
	backend := fs.String("prefs", "file", "Preference backend: file, sqlite, memory")
	defaultChain := fs.Uint64("default-chain", 46, "Chain selected when nothing is stored")
	port := fs.Int("port", 8420, "API port")
	force := fs.Bool("force", false, "Overwrite an existing config file")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: stakeclaw init [options]

Write a default stakeclaw configuration.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if _, err := os.Stat(*outputPath); err == nil && !*force {
		return errorf("config file %s already exists (use --force to overwrite)", *outputPath)
	}

	cfg := config.DefaultConfig()
	cfg.Server.DataDir = *dataDir
	cfg.Server.Port = *port
	cfg.Preferences.Backend = *backend
	cfg.Chains.Default = *defaultChain
	if err := cfg.Validate(); err != nil {
		return errorf("%v", err)
	}

	reg, err := LoadRegistry(cfg)
	if err != nil {
		return errorf("loading chains: %v", err)
	}
	if _, err := reg.Resolve(*defaultChain); err != nil {
		return errorf("--default-chain: %v", err)
	}

	if err := cfg.Save(*outputPath); err != nil {
		return errorf("saving config: %v", err)
	}

	fmt.Fprintf(stdout, "Config written to %s\n", *outputPath)
	fmt.Fprintf(stdout, "   Data dir:      %s\n", cfg.Server.DataDir)
	fmt.Fprintf(stdout, "   Preferences:   %s\n", cfg.Preferences.Backend)
	fmt.Fprintf(stdout, "   Default chain: %d\n", cfg.Chains.Default)
	fmt.Fprintf(stdout, "\nRun 'stakeclaw serve --config %s' to start the API.\n", *outputPath)
	return 0
}
