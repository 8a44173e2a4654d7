package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReaderFullConfig(t *testing.T) {
	content := `
catalog:
  path: /var/lib/pgbackctl/catalog.db
log:
  level: debug
  json: true
variables:
  backup_profile: nightly
`
	cfg, err := NewParser().LoadReader(content)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pgbackctl/catalog.db", cfg.Catalog.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "nightly", cfg.Variables["backup_profile"])
}

func TestLoadReaderDefaults(t *testing.T) {
	cfg, err := NewParser().LoadReader("{}")
	require.NoError(t, err)

	want, err := DefaultCatalogPath()
	require.NoError(t, err)

	assert.Equal(t, want, cfg.Catalog.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
	assert.Nil(t, cfg.Variables)
}

func TestLoadReaderRejectsBadLogLevel(t *testing.T) {
	_, err := NewParser().LoadReader("log:\n  level: noisy\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoadReaderExpandsEnv(t *testing.T) {
	t.Setenv("PGBACKCTL_TEST_DIR", "/mnt/backups")

	content := `
catalog:
  path: ${PGBACKCTL_TEST_DIR}/catalog.db
`
	cfg, err := NewParser().LoadReader(content)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/backups/catalog.db", cfg.Catalog.Path)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog:\n  path: /tmp/cat.db\n"), 0o644))

	cfg, err := NewParser().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cat.db", cfg.Catalog.Path)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := NewParser().LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate(nil))

	cfg, err := NewParser().LoadReader("{}")
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg))

	cfg.Catalog.Path = ""
	assert.Error(t, Validate(cfg))
}
