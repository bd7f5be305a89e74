package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangebot/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfgYAML := `
app:
  env: paper
  log_level: warn
storage:
  journal_path: ` + filepath.Join(dir, "journal.db") + `
  event_log_path: ` + filepath.Join(dir, "events.db") + `
runtime:
  heartbeat_seconds: 0.01
  instance_id: app-test
trading:
  enabled: false
http:
  enabled: false
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfgYAML), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestBuildAssemblesComponents(t *testing.T) {
	app, err := NewAppBuilder(testConfig(t)).Build(context.Background())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Trader())
	assert.NotNil(t, app.Reporter())
	assert.Nil(t, app.statusHTTP) // http.enabled=false
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app, err := NewAppBuilder(testConfig(t)).Build(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = app.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewAppNilConfig(t *testing.T) {
	_, err := NewApp(nil)
	require.Error(t, err)
}
