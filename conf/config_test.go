package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filasieno/embedded-innodb/innodb/basic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "my.cnf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg := NewDefaultCfg()
	assert.Equal(t, basic.RecoveryDefault, cfg.InnodbForceRecovery)
	assert.Equal(t, basic.UnivPageSize, cfg.InnodbPageSize)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[mysqld]
datadir = /var/lib/testdb
innodb_buffer_pool_size = 8388608
innodb_force_recovery = 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/testdb", cfg.DataDir)
	assert.Equal(t, 8388608, cfg.InnodbBufferPoolSize)
	assert.Equal(t, basic.RecoveryNoTrxUndo, cfg.InnodbForceRecovery)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
[mysqld]
innodb_force_recovery = 11
`)
	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
[mysqld]
innodb_page_size = 4096
`)
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cnf"))
	assert.Error(t, err)
}
