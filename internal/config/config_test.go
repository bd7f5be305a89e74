package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
app:
  env: paper
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "MGC", cfg.Instrument.Symbol)
	assert.Equal(t, 10.0, cfg.Instrument.Multiplier)
	assert.Equal(t, 0.1, cfg.Instrument.MinTick)
	assert.Equal(t, "breakout", cfg.Strategy.Type)
	assert.Equal(t, "09:30", cfg.Strategy.Breakout.RangeWindow.Start)
	assert.Equal(t, "15:55", cfg.Strategy.Breakout.FlatTime)
	assert.Equal(t, 2.0, cfg.Strategy.Breakout.TakeProfitR)
	assert.True(t, cfg.Strategy.Breakout.BreakEven.Enabled)
	assert.True(t, cfg.Strategy.Breakout.Shadow.Enabled)
	assert.Equal(t, "halt", cfg.Reconcile.UnknownOrdersPolicy)
	assert.Equal(t, ":9881", cfg.HTTP.Addr)
}

func TestLoadRespectsExplicitZeroes(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
strategy:
  breakout:
    breakout_buffer_ticks: 0
    be:
      enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// 显式写 0/false 的键不能被默认值覆盖
	assert.Equal(t, 0, cfg.Strategy.Breakout.BreakoutBufferTicks)
	assert.False(t, cfg.Strategy.Breakout.BreakEven.Enabled)
	// 未写的键仍然有默认值
	assert.Equal(t, 2, cfg.Strategy.Breakout.StopBufferTicks)
}

func TestLoadIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
instrument:
  symbol: GC
  multiplier: 100
risk:
  max_daily_loss_usd: 500
`)
	main := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
risk:
  max_daily_loss_usd: 250
`)
	cfg, err := Load(main)
	require.NoError(t, err)

	// include 的值生效，主文件覆盖同名键
	assert.Equal(t, "GC", cfg.Instrument.Symbol)
	assert.Equal(t, 100.0, cfg.Instrument.Multiplier)
	assert.Equal(t, 250.0, cfg.Risk.MaxDailyLossUSD)
}

func TestLoadRejectsBadWindow(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
strategy:
  breakout:
    flat_time: "25:99"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsLiveWithoutAllowLive(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
app:
  env: live
trading:
  enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
reconcile:
  unknown_orders_policy: explode
`)
	_, err := Load(path)
	require.Error(t, err)
}
