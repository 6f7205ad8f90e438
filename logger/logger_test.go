package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jgrocha/BluetoothChat/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestInit_WritesToFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.LogFile = filepath.Join(t.TempDir(), "result.log")
	cfg.Logging.LogLevel = "warn"

	require.NoError(t, Init(cfg))
	Printf("hidden at warn level")
	Warnf("sensor %d lost contact", 7)
	require.NoError(t, Close())

	data, err := os.ReadFile(cfg.Logging.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sensor 7 lost contact")
	assert.NotContains(t, string(data), "hidden at warn level")
	assert.Equal(t, cfg.Logging.LogFile, GetLogFileName())
}

func TestBeforeInit_Discards(t *testing.T) {
	Use(zap.NewNop())
	assert.NotPanics(t, func() {
		Printf("nothing %s", "here")
		Debugf("x")
		Errorf("y")
		LogResult("op", false, "details")
	})
	assert.NoError(t, Close())
}
