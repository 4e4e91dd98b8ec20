package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")

	// 当前目录下没有 config.yaml，全部走默认值
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, 500*time.Millisecond, c.Sync.Debounce)
	assert.Equal(t, 3*time.Second, c.Sync.Cooldown)
	assert.Equal(t, "pricing_sync", c.Sync.Schema.MainTable.Name)
	assert.Equal(t, "profile_id", c.Sync.Schema.ListTable.ItemIDColumn)
	assert.False(t, c.Sync.Configured(), "缺少环境变量时不应启用同步")
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
sync:
  debounce: 250ms
  env:
    url_key: TEST_REMOTE_URL
    anon_key: TEST_REMOTE_KEY
  schema:
    main_table:
      name: custom_sync
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("TEST_REMOTE_URL", " postgres://db.example.com/postgres ")
	t.Setenv("TEST_REMOTE_KEY", "anon-token")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, c.Sync.Debounce)
	assert.Equal(t, "custom_sync", c.Sync.Schema.MainTable.Name)
	assert.Equal(t, "device_id", c.Sync.Schema.MainTable.DeviceIDColumn)
	assert.Equal(t, "postgres://db.example.com/postgres", c.Sync.URL)
	assert.True(t, c.Sync.Configured())
}

func TestSyncConfigured(t *testing.T) {
	tests := []struct {
		name string
		sc   SyncConfig
		want bool
	}{
		{"都为空", SyncConfig{}, false},
		{"只有地址", SyncConfig{URL: "postgres://x"}, false},
		{"只有令牌", SyncConfig{AnonKey: "k"}, false},
		{"完整", SyncConfig{URL: "postgres://x", AnonKey: "k"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sc.Configured())
		})
	}
}
