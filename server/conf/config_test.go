package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCfgDefaults(t *testing.T) {
	cfg := NewCfg()

	assert.Equal(t, 16384, cfg.InnodbPageSize)
	assert.Equal(t, 134217728, cfg.InnodbBufferPoolSize)
	assert.Equal(t, ChangeBufferingAll, cfg.InnodbChangeBuffering)
	assert.Equal(t, 25, cfg.InnodbChangeBufferMaxSize)
	assert.False(t, cfg.InnodbReadOnly)
	assert.Equal(t, 8, cfg.InnodbIbufContractBatch)
}

func TestLoadFromIni(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my.ini")
	content := `
[innodb]
page_size = 8192
buffer_pool_size = 33554432
change_buffering = inserts
change_buffer_max_size = 30
read_only = true
ibuf_contract_batch = 4

[logs]
log_level = debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := NewCfg().Load(&CommandLineArgs{ConfigPath: path})

	assert.Equal(t, 8192, cfg.InnodbPageSize)
	assert.Equal(t, 33554432, cfg.InnodbBufferPoolSize)
	assert.Equal(t, ChangeBufferingInserts, cfg.InnodbChangeBuffering)
	assert.Equal(t, 30, cfg.InnodbChangeBufferMaxSize)
	assert.True(t, cfg.InnodbReadOnly)
	assert.Equal(t, 4, cfg.InnodbIbufContractBatch)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestChangeBufferMaxSizeClamp(t *testing.T) {
	for _, bad := range []string{"0", "-5", "51", "100"} {
		dir := t.TempDir()
		path := filepath.Join(dir, "my.ini")
		require.NoError(t, os.WriteFile(path,
			[]byte("[innodb]\nchange_buffer_max_size = "+bad+"\n"), 0644))

		cfg := NewCfg().Load(&CommandLineArgs{ConfigPath: path})
		assert.Equal(t, 25, cfg.InnodbChangeBufferMaxSize, "input %s", bad)
	}
}

func TestParseChangeBuffering(t *testing.T) {
	assert.Equal(t, ChangeBufferingNone, parseChangeBuffering("none"))
	assert.Equal(t, ChangeBufferingDeletes, parseChangeBuffering("DELETES"))
	assert.Equal(t, ChangeBufferingAll, parseChangeBuffering("bogus"))
	assert.Equal(t, ChangeBufferingAll, parseChangeBuffering(""))
}
