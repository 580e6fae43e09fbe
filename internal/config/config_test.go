package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compatcollect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: webref
    dir: idl/webref
    priority: 1
custom:
  idl: custom/idl
  tests: custom/tests.yaml
browsers: /etc/compat/browsers.yaml
overrides: overrides.json
mirrors:
  edge: chrome
reports:
  dir: reports
`)
	t.Setenv("COMPAT_WORKERS", "8")
	t.Setenv("COMPAT_REPORTS__SCHEMA_VERSION", "11.0")
	t.Setenv("COMPAT_TRACING__ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	base := filepath.Dir(path)

	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "webref", cfg.Sources[0].Name)
	assert.Equal(t, filepath.Join(base, "idl/webref"), cfg.Sources[0].Dir)
	assert.Equal(t, 1, cfg.Sources[0].Priority)
	assert.Equal(t, filepath.Join(base, "custom/tests.yaml"), cfg.Custom.Tests)
	assert.Equal(t, "/etc/compat/browsers.yaml", cfg.Browsers)
	assert.Equal(t, map[string]string{"edge": "chrome"}, cfg.Mirrors)

	t.Run("Environment overrides", func(t *testing.T) {
		assert.Equal(t, 8, cfg.Workers)
		assert.Equal(t, "11.0", cfg.Reports.SchemaVersion)
		assert.True(t, cfg.Tracing.Enabled)
	})

	t.Run("Defaults", func(t *testing.T) {
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "compatcollect", cfg.Tracing.ServiceName)
		assert.Equal(t, filepath.Join(base, "compatcollect.db"), cfg.Reports.DB)
		assert.Equal(t, filepath.Join(base, "out/matrix.json"), cfg.Output.Matrix)
	})
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "configs/browsers.yaml", cfg.Browsers)
	assert.Empty(t, cfg.Sources)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("Bad sources", func(t *testing.T) {
		path := writeConfig(t, `
workers: 0
sources:
  - name: a
    dir: x
  - name: a
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workers must be positive")
		assert.Contains(t, err.Error(), "duplicate name")
		assert.Contains(t, err.Error(), "sources[1]: dir is required")
	})
}

func TestExists(t *testing.T) {
	assert.False(t, Exists(""))
	assert.False(t, Exists(filepath.Join(t.TempDir(), "missing")))
	assert.True(t, Exists(t.TempDir()))
}
