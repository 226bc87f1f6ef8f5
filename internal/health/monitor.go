package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clawinfra/stakeclaw/internal/chains"
)

// Monitor runs CheckAll on a cron schedule and keeps the latest reports.
type Monitor struct {
	checker *Checker
	list    func() []chains.ChainConfig
	logger  *slog.Logger
	cron    *cron.Cron

	mu      sync.RWMutex
	timeout time.Duration
	latest  []ChainReport
	lastRun time.Time
}

// NewMonitor schedules probes of the chains returned by list. schedule is a
// standard 5-field cron expression or a descriptor such as "@every 5m".
func NewMonitor(checker *Checker, list func() []chains.ChainConfig, schedule string, timeout time.Duration, logger *slog.Logger) (*Monitor, error) {
	m := &Monitor{
		checker: checker,
		list:    list,
		timeout: timeout,
		logger:  logger.With("component", "health-monitor"),
	}
	cl := cronLogger{m.logger}
	m.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := m.cron.AddFunc(schedule, func() { m.RunNow(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse health schedule %q: %w", schedule, err)
	}
	return m, nil
}

// Start begins scheduled probing.
func (m *Monitor) Start() {
	m.cron.Start()
	m.logger.Info("health monitor started")
}

// Stop halts the schedule and waits for a running probe to finish or ctx
// to expire.
func (m *Monitor) Stop(ctx context.Context) {
	done := m.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	m.logger.Info("health monitor stopped")
}

// RunNow probes immediately and stores the result.
func (m *Monitor) RunNow(ctx context.Context) []ChainReport {
	m.mu.RLock()
	timeout := m.timeout
	m.mu.RUnlock()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reports := m.checker.CheckAll(ctx, m.list())
	unhealthy := 0
	for _, r := range reports {
		if !r.Healthy() {
			unhealthy++
		}
	}

	m.mu.Lock()
	m.latest = reports
	m.lastRun = time.Now()
	m.mu.Unlock()

	m.logger.Info("health probe finished", "chains", len(reports), "unhealthy", unhealthy)
	return reports
}

// SetTimeout changes the deadline of later runs.
func (m *Monitor) SetTimeout(d time.Duration) {
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// Latest returns the reports of the last run and when it finished. It
// returns nil before the first run.
func (m *Monitor) Latest() ([]ChainReport, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil, m.lastRun
	}
	out := make([]ChainReport, len(m.latest))
	copy(out, m.latest)
	return out, m.lastRun
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
