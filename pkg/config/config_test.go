package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
agent:
  task_id: "pulse.sync.test"
schedule:
  daily_start: "09:30"
  interval_hours: 3
budget:
  execution: "5m"
downloader:
  base_url: "http://127.0.0.1:19000/export"
  rate_limit_bytes: 65536
log:
  level: "debug"
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pulse.sync.test", cfg.Agent.TaskID)
	assert.Equal(t, "pulse-001", cfg.Agent.InstanceID)
	assert.Equal(t, "09:30", cfg.Schedule.DailyStart)
	assert.Equal(t, "20:00", cfg.Schedule.DailyEnd)
	assert.Equal(t, 3, cfg.Schedule.IntervalHours)
	assert.Equal(t, 5*time.Minute, cfg.Budget.Execution)
	assert.Equal(t, 30*time.Second, cfg.Budget.NetworkRecheck)
	assert.Equal(t, 65536, cfg.Downloader.RateLimitBytes)
	assert.Equal(t, 14, cfg.Downloader.WideDays)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Leader.Enabled)
	assert.True(t, cfg.Authorization.DefaultGranted)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
