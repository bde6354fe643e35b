package telemetry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_RejectsReinitialization(t *testing.T) {
	require.NoError(t, Init(Config{Level: slog.LevelInfo, ServiceID: "test"}))
	defer Shutdown(context.Background())

	err := Init(Config{Level: slog.LevelDebug})
	assert.Error(t, err, "second Init without Shutdown must fail")
}

func TestShutdown_AllowsReinit(t *testing.T) {
	require.NoError(t, Init(Config{Level: slog.LevelInfo}))
	Shutdown(context.Background())
	require.NoError(t, Init(Config{Level: slog.LevelWarn, JSON: true}))
	Shutdown(context.Background())
}
