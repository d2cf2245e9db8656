package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing-on-purpose.yaml"))
	require.Error(t, err, "an explicitly named file must exist")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "fsadmin.log", cfg.LogFile)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.False(t, cfg.DryRun)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fsadmin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"api_key: k3y\ndomain: acme\nworkspace_id: 3\ndry_run: true\nlog_level: debug\n",
	), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "k3y", cfg.APIKey)
	assert.Equal(t, "acme", cfg.Domain)
	assert.Equal(t, int64(3), cfg.WorkspaceID)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fsadmin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: from-file\n"), 0o644))

	t.Setenv("FSADMIN_API_KEY", "from-env")
	t.Setenv("FSADMIN_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.Validate())

	cfg.APIKey = "k3y"
	assert.NoError(t, cfg.Validate())
}
