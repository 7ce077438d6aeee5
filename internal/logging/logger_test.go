package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCategoryLoggersAreNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg, err := NewRegistry(zap.New(core), Options{})
	require.NoError(t, err)

	reg.Get(CategoryEngine).Info("retry %d for %s", 2, "ABC123")
	reg.Get(CategoryBatch).Warn("paused")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "engine", entries[0].LoggerName)
	assert.Equal(t, "retry 2 for ABC123", entries[0].Message)
	assert.Equal(t, "batch", entries[1].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg, err := NewRegistry(zap.New(core), Options{Categories: map[string]bool{"browser": false}})
	require.NoError(t, err)

	reg.Get(CategoryBrowser).Error("should not appear")
	reg.Get(CategoryBoot).Info("visible")

	assert.Equal(t, 1, logs.Len())
	assert.False(t, reg.IsCategoryEnabled(CategoryBrowser))
	assert.True(t, reg.IsCategoryEnabled(CategoryRecovery))
}

func TestGetReturnsSameLogger(t *testing.T) {
	reg := Nop()
	assert.Same(t, reg.Get(CategoryUI), reg.Get(CategoryUI))
}

func TestWithAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	reg, err := NewRegistry(zap.New(core), Options{})
	require.NoError(t, err)

	reg.Get(CategoryEngine).With("code", "M-1").Info("submitted")
	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "M-1", entries[0].ContextMap()["code"])
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(zap.NewNop(), Options{Level: "debug", Dir: dir})
	require.NoError(t, err)

	reg.Get(CategoryCheckpoint).Debug("marked %s", "R-77")
	require.NoError(t, reg.Close())

	path := filepath.Join(dir, "autorndc_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"marked R-77"`), string(data))
	assert.True(t, strings.Contains(string(data), `"logger":"checkpoint"`), string(data))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestTimerThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg, err := NewRegistry(zap.New(core), Options{})
	require.NoError(t, err)

	timer := StartTimer(reg.Get(CategoryBrowser), "navigate")
	elapsed := timer.StopWithThreshold(time.Hour)
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
}
