package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
version = "1.0.0"

[server]
name = "rangeserver"
environment = "test"

[server.http]
port = 9090
read_timeout = "3s"

[log]
level = "debug"

[kafka]
enabled = true
topic = "range-updates"
group_id = "rangeserver"
brokers = ["localhost:9092"]
password = "ignored"

[catalog]
default_engine = "iterative"
max_leaves = 1024

[[catalog.trees]]
name = "latency"
aggregation = "max"
mode = "assign"
values = [5, 1, 4, 2, 3]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	var cfg Config
	require.NoError(t, Load(writeConfig(t, sampleTOML), &cfg))

	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, 9090, cfg.Server.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.HTTP.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.HTTP.WriteTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 1, cfg.Kafka.Workers)
	assert.Equal(t, "iterative", cfg.Catalog.DefaultEngine)
	assert.Equal(t, 1024, cfg.Catalog.MaxLeaves)

	require.Len(t, cfg.Catalog.Trees, 1)
	tree := cfg.Catalog.Trees[0]
	assert.Equal(t, "latency", tree.Name)
	assert.Equal(t, "max", tree.Aggregation)
	assert.Equal(t, []int64{5, 1, 4, 2, 3}, tree.Values)
	assert.NotNil(t, active())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APP_SERVER_HTTP_PORT", "7070")
	t.Setenv("APP_LOG_LEVEL", "warn")

	var cfg Config
	require.NoError(t, Load(writeConfig(t, sampleTOML), &cfg))
	assert.Equal(t, 7070, cfg.Server.HTTP.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	var cfg Config
	err := Load(writeConfig(t, sampleTOML+`
[[catalog.trees]]
name = "bad"
aggregation = "avg"
mode = "assign"
values = [1]
`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	err = Load(writeConfig(t, `
[kafka]
enabled = true
`), &cfg)
	require.Error(t, err)

	err = Load(filepath.Join(t.TempDir(), "missing.toml"), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config error")
}

func TestLoad_Defaults(t *testing.T) {
	var cfg Config
	require.NoError(t, Load(writeConfig(t, "version = \"dev\"\n"), &cfg))
	assert.Equal(t, "rangeserver", cfg.Server.Name)
	assert.Equal(t, "dev", cfg.Server.Environment)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, "recursive", cfg.Catalog.DefaultEngine)
	assert.Equal(t, 1<<20, cfg.Catalog.MaxLeaves)
	assert.Equal(t, int64(4<<20), cfg.Server.HTTP.MaxBodyBytes)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.HTTP.SlowThreshold)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestReload(t *testing.T) {
	path := writeConfig(t, sampleTOML)
	var cfg Config
	require.NoError(t, Load(path, &cfg))

	var seen *Config
	RegisterReloadHook(func(c *Config) { seen = c })
	RegisterReloadHook(nil)

	require.NoError(t, os.WriteFile(path, []byte(sampleTOML+"\n[ratelimit]\nenabled = true\nrate = 50\nburst = 10\n"), 0o600))
	v := active()
	require.NoError(t, v.ReadInConfig())
	reload(v, &cfg)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 50, cfg.RateLimit.Rate)
	require.NotNil(t, seen)
	assert.NotSame(t, &cfg, seen)
	assert.Equal(t, 50, seen.RateLimit.Rate)

	// 回调持有的是副本，修改它不影响当前配置。
	seen.RateLimit.Rate = 1
	assert.Equal(t, 50, cfg.RateLimit.Rate)

	// 校验失败的新配置不会覆盖当前配置。
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"loud\"\n"), 0o600))
	require.NoError(t, v.ReadInConfig())
	reload(v, &cfg)
	assert.Equal(t, 50, cfg.RateLimit.Rate)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMasked(t *testing.T) {
	type secrets struct {
		Name     string
		Password string
		Nested   struct{ APIToken string }
	}
	var s secrets
	s.Name = "n"
	s.Password = "p"
	s.Nested.APIToken = "t"

	out, err := Masked(s)
	require.NoError(t, err)
	assert.Contains(t, out, `"Name": "n"`)
	assert.NotContains(t, out, `"p"`)
	assert.NotContains(t, out, `"t"`)
	assert.Contains(t, out, "******")
}
