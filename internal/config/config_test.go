package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	require.NotNil(t, config)
	require.NotNil(t, config.Program)
	require.NotNil(t, config.Ledger)
	require.NotNil(t, config.Output)
	require.NotNil(t, config.API)
	require.NotNil(t, config.Logging)

	// 程序策略默认值
	assert.Equal(t, 10, config.Program.MinApprovals)
	assert.True(t, config.Program.RequirePublishedForAccess)

	// 账本默认使用bbolt
	assert.Equal(t, "bolt", config.Ledger.Backend)
	assert.NotEmpty(t, config.Ledger.Path)

	// 事件输出默认走异步Kafka，五个事件类别都有主题
	assert.Equal(t, "kafka_async", config.Output.Format)
	require.NotNil(t, config.Output.Kafka)
	assert.NotEmpty(t, config.Output.Kafka.Brokers)
	for _, category := range []string{"profiles", "papers", "reviews", "access", "reputation"} {
		assert.Contains(t, config.Output.Kafka.Topics, category)
	}

	assert.Equal(t, ":8080", config.API.Listen)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	yaml := `
program:
  program_id: "9ZNTfG4NyQgxy2SWjSiQoUyBPEvXT2xo7fKc5hPYYJ7b"
  min_approvals: 3
  require_published_for_access: false
  reputation_authority: "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
ledger:
  backend: memory
output:
  format: json
  directory: ./out
  compress: true
api:
  listen: ":9090"
  mode: debug
logging:
  level: debug
  format: text
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9ZNTfG4NyQgxy2SWjSiQoUyBPEvXT2xo7fKc5hPYYJ7b", config.Program.ProgramID)
	assert.Equal(t, 3, config.Program.MinApprovals)
	assert.False(t, config.Program.RequirePublishedForAccess)
	assert.Equal(t, "memory", config.Ledger.Backend)
	assert.Equal(t, "json", config.Output.Format)
	assert.True(t, config.Output.Compress)
	assert.Equal(t, ":9090", config.API.Listen)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigFallsBackToFile(t *testing.T) {
	// 没有数据库DSN时回退到YAML文件
	t.Setenv("DERESEARCHER_DB_DSN", "")

	yaml := `
program:
  program_id: "test"
  min_approvals: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, config.Program.MinApprovals)
}
