package core

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/encodeous/weft/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ClosesLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "conn.log")
	logger, closeLog, err := newLogger(&state.NodeCfg{Id: "conn", LogPath: logPath}, slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("hello", "account", "alice")
	require.NoError(t, closeLog())
	assert.ErrorIs(t, closeLog(), os.ErrClosed)

	out, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(out), "msg=hello account=alice")
}

func TestNewLogger_NoLogFile(t *testing.T) {
	logger, closeLog, err := newLogger(&state.NodeCfg{Id: "conn"}, slog.LevelInfo)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NoError(t, closeLog())
}
