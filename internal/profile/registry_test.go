package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfiles = `
profiles:
  mgc_default:
    description: "默认参数"
    version: 2
    params:
      tp_r: 2.0
      sl_buffer_ticks: 2
      allow_short: false
  mgc_aggressive:
    id: mgc_aggressive
    params:
      tp_r: 3.5
      max_trades_per_day: 2
  broken:
    params:
      tp_r: -1
`

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProfilesSkipsInvalid(t *testing.T) {
	r, err := NewRegistry(writeProfiles(t, sampleProfiles), false)
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Templates, 2) // broken 被校验拒绝

	tpl, ok := r.Template("mgc_default")
	require.True(t, ok)
	assert.Equal(t, "mgc_default", tpl.ID) // 缺省 id 回退为键名
	assert.Equal(t, 2, tpl.Version)

	_, ok = r.Template("broken")
	assert.False(t, ok)
}

func TestUnknownParamRejected(t *testing.T) {
	r, err := NewRegistry(writeProfiles(t, `
profiles:
  typo:
    params:
      tp_ratio: 2.0
`), false)
	require.NoError(t, err)
	_, ok := r.Template("typo")
	assert.False(t, ok)
}

func TestMissingFileFails(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "nope.yaml"), false)
	require.Error(t, err)
}

func TestApplyToOverridesOnlyListedKeys(t *testing.T) {
	tpl := Template{Params: map[string]any{"tp_r": 3.5}}
	out := tpl.ApplyTo(map[string]any{"tp_r": 2.0, "qty": 1})
	assert.Equal(t, 3.5, out["tp_r"])
	assert.Equal(t, 1, out["qty"])
}

func TestSanitizeParams(t *testing.T) {
	out := sanitizeParams(map[string]any{"tp_r": "2.5", "qty": "3"}).(map[string]any)
	assert.Equal(t, 2.5, out["tp_r"])
	assert.Equal(t, int64(3), out["qty"])
}
