// Package telemetry owns the process-wide structured logger: a singleton
// initialized once at startup and torn down on shutdown, never reinitialized
// while live.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Config controls the default logger's behavior.
type Config struct {
	Level     slog.Level
	JSON      bool
	ServiceID string
}

var (
	once   sync.Once
	inited bool
	mu     sync.Mutex
)

// Init installs the process-wide default logger. Calling Init a second time
// without an intervening Shutdown returns an error.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if inited {
		return fmt.Errorf("telemetry: already initialized")
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	if cfg.ServiceID != "" {
		logger = logger.With("service", cfg.ServiceID)
	}
	slog.SetDefault(logger)

	once.Do(func() {}) // reserved for one-time registration hooks (exporters, etc.)
	inited = true
	return nil
}

// Shutdown tears down the default logger, allowing a subsequent Init. It does
// not flush anything today (slog writers here are unbuffered) but keeps the
// init/shutdown contract symmetric.
func Shutdown(_ context.Context) {
	mu.Lock()
	defer mu.Unlock()
	inited = false
}
