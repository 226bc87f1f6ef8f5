package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/clawinfra/stakeclaw/internal/cli"
	"github.com/clawinfra/stakeclaw/internal/config"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
)

const defaultConfigPath = "stakeclaw.toml"

// watchInterval is how often the config file is polled for changes.
const watchInterval = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	configPath, subCmd, rest := splitCommand(args)

	switch subCmd {
	case "", "serve", "start":
		return serve(rest, configPath)
	case "chain":
		return cli.ChainCommand(rest, configPath)
	case "calc":
		return cli.CalcCommand(rest)
	case "prefs":
		return cli.PrefsCommand(rest, configPath)
	case "connect":
		return cli.ConnectCommand(rest, configPath)
	case "init":
		return cli.InitCommand(rest)
	case "token":
		return cli.TokenCommand(rest)
	case "version":
		printVersion()
		return 0
	case "help":
		if len(rest) > 0 {
			if !cli.PrintCommandHelp("stakeclaw", rest[0]) {
				return 1
			}
			return 0
		}
		cli.PrintHelp("stakeclaw")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", subCmd)
		fmt.Fprintf(os.Stderr, "Available commands: %v\n", cli.CommandNames())
		return 1
	}
}

// splitCommand pulls the global --config flag out of args and finds the
// subcommand: the first argument that is neither a flag nor a flag value.
func splitCommand(args []string) (configPath, subCmd string, rest []string) {
	configPath = defaultConfigPath
	var remaining []string
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "--config", "-config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		default:
			remaining = append(remaining, arg)
		}
	}

	for i, arg := range remaining {
		if len(arg) > 0 && arg[0] != '-' {
			return configPath, arg, append(remaining[:i:i], remaining[i+1:]...)
		}
	}
	return configPath, "", remaining
}

func printVersion() {
	fmt.Printf("stakeclaw v%s (built %s)\n", version, buildTime)
	fmt.Println("Staking client for Darwinia and Crab")
	fmt.Println("https://github.com/clawinfra/stakeclaw")
}

func serve(args []string, configPath string) int {
	fs := flag.NewFlagSet("stakeclaw", flag.ContinueOnError)
	showVersion := fs.Bool("version", false, "Show version")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *showVersion {
		printVersion()
		return 0
	}

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}
	lvl, err := config.ParseLogLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("unknown log level, using info", "level", cfg.Server.LogLevel)
	}
	level.Set(lvl)

	app, err := cli.NewApp(cfg, logger, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}
	app.LogLevel = level

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServices(ctx, app, configPath)
	printBanner(app)

	if err := waitForShutdown(app, configPath, cancel); err != nil {
		app.Logger.Error("shutdown error", "error", err)
		return 1
	}
	return 0
}

// loadConfig loads configuration from file or creates default
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no config found, creating default")
			cfg = config.DefaultConfig()
			if err := cfg.Save(path); err != nil {
				return nil, fmt.Errorf("save default config: %w", err)
			}
			if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			logger.Info("default config created", "path", path)
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// startServices restores the last session and starts the monitor, the
// config watcher and the API server. Everything stops when ctx is done or
// on shutdown.
func startServices(ctx context.Context, app *cli.App, configPath string) {
	go func() {
		snap, err := app.Orchestrator.Restore(ctx)
		if err != nil {
			app.Logger.Warn("session restore failed", "chain", snap.ChainID, "error", err)
			return
		}
		app.Logger.Info("session restored", "state", snap.State, "chain", snap.ChainID)
	}()

	if app.Monitor != nil {
		app.Monitor.Start()
		go app.Monitor.RunNow(ctx)
	}

	watcher := config.NewWatcher(app.Config, configPath, watchInterval, app.Logger, app.ApplyReload)
	go watcher.Run(ctx)

	if app.APIServer != nil {
		go func() {
			if err := app.APIServer.Start(ctx); err != nil {
				app.Logger.Error("API server error", "error", err)
			}
		}()
	}
}

// printBanner displays the startup banner
func printBanner(app *cli.App) {
	fmt.Println()
	fmt.Printf("  stakeclaw v%s\n", version)
	if app.APIServer != nil {
		fmt.Printf("  API:     http://localhost:%d/api/status\n", app.Config.Server.Port)
		fmt.Printf("  Stream:  ws://localhost:%d/api/session/stream\n", app.Config.Server.Port)
	}
	fmt.Printf("  Chains:  %d selectable\n", len(app.Registry.List()))
	if app.Monitor != nil {
		fmt.Printf("  Health:  %s\n", app.Config.Health.Schedule)
	}
	fmt.Println()
}

// waitForShutdown waits for termination signal and performs graceful
// shutdown. stop cancels the context the services run under.
func waitForShutdown(app *cli.App, configPath string, stop context.CancelFunc) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, getShutdownSignals()...)
	defer signal.Stop(sigCh)

	for {
		sig := <-sigCh
		if handlePlatformSignal(sig, app, configPath) {
			continue
		}
		app.Logger.Info("shutdown signal received", "signal", sig)
		break
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	app.Logger.Info("stakeclaw stopped")
	return nil
}
