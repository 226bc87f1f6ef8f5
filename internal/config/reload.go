package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
)

// ReloadResult describes what changed during a config reload.
type ReloadResult struct {
	Changed []string // list of changed fields
	Applied []string // successfully applied
	Skipped []string // require restart
}

// hotReloadable lists the fields a running server applies in place. Every
// other change needs a restart: the chain table and preference backend are
// fixed for the life of the process.
var hotReloadable = map[string]bool{
	"Server.LogLevel":   true,
	"Health.TimeoutSec": true,
}

// mu protects the Config during concurrent reload operations.
var mu sync.RWMutex

// Snapshot returns a copy of c safe to read while a reload may run.
func (c *Config) Snapshot() Config {
	mu.RLock()
	defer mu.RUnlock()
	return *c
}

// Reload re-reads the config from path, diffs it against c and applies the
// hot-reloadable changes in place.
func (c *Config) Reload(path string) (*ReloadResult, error) {
	next, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	result := &ReloadResult{}
	oldV := reflect.ValueOf(c).Elem()
	newV := reflect.ValueOf(next).Elem()
	for i := 0; i < oldV.NumField(); i++ {
		section := oldV.Type().Field(i).Name
		oldS, newS := oldV.Field(i), newV.Field(i)
		for j := 0; j < oldS.NumField(); j++ {
			field := section + "." + oldS.Type().Field(j).Name
			if reflect.DeepEqual(oldS.Field(j).Interface(), newS.Field(j).Interface()) {
				continue
			}
			result.Changed = append(result.Changed, field)
			if hotReloadable[field] {
				oldS.Field(j).Set(newS.Field(j))
				result.Applied = append(result.Applied, field)
			} else {
				result.Skipped = append(result.Skipped, field)
			}
		}
	}
	return result, nil
}

// LogResult logs the reload result at the appropriate levels.
func (r *ReloadResult) LogResult(logger *slog.Logger) {
	if len(r.Changed) == 0 {
		logger.Info("config reload: no changes detected")
		return
	}

	logger.Info("config reload complete",
		"changed", len(r.Changed),
		"applied", len(r.Applied),
		"skipped", len(r.Skipped),
	)
	for _, field := range r.Applied {
		logger.Info("config field hot-reloaded", "field", field)
	}
	for _, field := range r.Skipped {
		logger.Warn("config field requires restart", "field", field)
	}
}

// HotReloadableFields returns the sorted hot-reloadable field names.
func HotReloadableFields() []string {
	out := make([]string, 0, len(hotReloadable))
	for f := range hotReloadable {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
