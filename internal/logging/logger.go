// Package logging provides the catalog daemon's structured logging:
// one zap.Logger per named component, built once at startup from
// config.LoggingConfig and handed out via Get. Every component logger
// is named after its component (zap's Named), so log lines can be
// filtered by logger name without per-category file splitting.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names the subsystem a logger is scoped to.
type Component string

const (
	ComponentBoot       Component = "boot"
	ComponentCatalog    Component = "catalog"
	ComponentBridge     Component = "bridge"
	ComponentIngest     Component = "ingest"
	ComponentTelCSV     Component = "telcsv"
	ComponentCompletion Component = "completion"
	ComponentCollate    Component = "collate"
	ComponentAssoc      Component = "assoc"
	ComponentObsQuery   Component = "obsquery"
	ComponentEventLog   Component = "eventlog"
	ComponentCLI        Component = "cli"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	cache   = make(map[Component]*zap.Logger)
)

// Init builds the process-wide base logger from level/format and
// resets the per-component cache. level is a zapcore level name
// ("debug", "info", "warn", "error"); format is "json" or "console".
func Init(level, format string) error {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	base = l
	cache = make(map[Component]*zap.Logger)
	mu.Unlock()
	return nil
}

// Get returns (or lazily builds) the zap.Logger scoped to component.
// If Init was never called, Get falls back to zap's no-op logger so
// library code never panics on a nil logger.
func Get(component Component) *zap.Logger {
	mu.RLock()
	if l, ok := cache[component]; ok {
		mu.RUnlock()
		return l
	}
	b := base
	mu.RUnlock()

	if b == nil {
		return zap.NewNop()
	}

	l := b.Named(string(component))
	mu.Lock()
	cache[component] = l
	mu.Unlock()
	return l
}

// Sync flushes all built loggers; call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
	for _, l := range cache {
		_ = l.Sync()
	}
}
