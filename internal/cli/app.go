package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clawinfra/stakeclaw/internal/api"
	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/config"
	"github.com/clawinfra/stakeclaw/internal/contracts"
	"github.com/clawinfra/stakeclaw/internal/health"
	"github.com/clawinfra/stakeclaw/internal/orchestrator"
	"github.com/clawinfra/stakeclaw/internal/security"
	"github.com/clawinfra/stakeclaw/internal/session"
	"github.com/clawinfra/stakeclaw/internal/transport"
)

// App holds the runtime components assembled from a config.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	LogLevel     *slog.LevelVar // optional; updated on reload
	Registry     *chains.Registry
	Transport    *transport.Router
	Orchestrator *orchestrator.Orchestrator
	Checker      *health.Checker
	Monitor      *health.Monitor // nil when health checks are disabled
	APIServer    *api.Server     // nil when the API is disabled
}

// NewApp wires every component. Nothing is started and no connection is
// opened.
func NewApp(cfg *config.Config, logger *slog.Logger, version string) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	reg, err := LoadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("load chains: %w", err)
	}
	app.Registry = reg

	store, err := OpenPreferences(cfg, logger)
	if err != nil {
		return nil, err
	}

	app.Transport = transport.NewDefaultRouter(cfg.RequestTimeout(), cfg.CloseTimeout(), logger)
	builder := contracts.NewBuilder(ABISource(cfg), logger)
	manager := session.NewManager(reg, app.Transport, builder, logger)
	app.Orchestrator = orchestrator.New(reg, manager, store, logger,
		orchestrator.WithDefaultChain(cfg.Chains.Default))

	app.Checker = health.NewChecker(cfg.RequestTimeout(), logger)
	if cfg.Health.Enabled {
		app.Monitor, err = health.NewMonitor(app.Checker, reg.List, cfg.Health.Schedule, cfg.HealthTimeout(), logger)
		if err != nil {
			_ = app.Orchestrator.Close()
			return nil, err
		}
	}

	if cfg.API.Enabled {
		secret, _ := security.SecretFromEnv()
		opts := []api.Option{
			api.WithJWTSecret(secret),
			api.WithVersion(version),
			api.WithOriginPatterns(cfg.API.AllowedOrigins),
		}
		if app.Monitor != nil {
			opts = append(opts, api.WithHealth(app.Monitor))
		}
		app.APIServer = api.NewServer(cfg.Server.Port, app.Orchestrator, logger, opts...)
	}
	return app, nil
}

// ApplyReload pushes hot-reloaded settings into running components.
func (a *App) ApplyReload(res *config.ReloadResult) {
	snap := a.Config.Snapshot()
	for _, f := range res.Applied {
		switch f {
		case "Server.LogLevel":
			if a.LogLevel == nil {
				continue
			}
			level, err := config.ParseLogLevel(snap.Server.LogLevel)
			if err != nil {
				a.Logger.Warn("ignoring log level", "error", err)
				continue
			}
			a.LogLevel.Set(level)
		case "Health.TimeoutSec":
			if a.Monitor != nil {
				a.Monitor.SetTimeout(snap.HealthTimeout())
			}
		}
	}
}

// Close stops the monitor and releases the session and preference store.
func (a *App) Close(ctx context.Context) error {
	if a.Monitor != nil {
		a.Monitor.Stop(ctx)
	}
	return a.Orchestrator.Close()
}
