package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "")
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, 3, cfg.Engine.IdleThreshold)
	assert.Equal(t, 2, cfg.Engine.MaxAutonomousTurns)
	assert.Equal(t, 6, cfg.Engine.HistoryTail)
	assert.Equal(t, 0.6, cfg.Engine.PropagationThreshold)
	assert.Equal(t, 3, cfg.Engine.RecallK)
	assert.Len(t, cfg.Cast.Characters, 5)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
gemini:
  model: gemini-from-file
engine:
  idle_threshold: 5
  external_timeout: 12s
memory:
  redis_addr: file-redis:6379
cast:
  characters:
    - name: Zoe
      description: Chef
      topic: Cooking
`), 0o600))

	t.Setenv("GEMINI_MODEL", "gemini-from-env")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("GEMINI_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "gemini-from-env", cfg.Gemini.Model)
	assert.Equal(t, "secret", cfg.Gemini.APIKey)
	assert.Equal(t, 5, cfg.Engine.IdleThreshold)
	assert.Equal(t, 12*time.Second, cfg.Engine.ExternalTimeout)
	assert.Equal(t, 2, cfg.Engine.MaxAutonomousTurns)
	assert.Equal(t, "file-redis:6379", cfg.Memory.RedisAddr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	require.Len(t, cfg.Cast.Characters, 1)
	assert.Equal(t, "Zoe", cfg.Cast.Characters[0].Name)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.IdleThreshold)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"idle threshold", func(c *Config) { c.Engine.IdleThreshold = 0 }, "idle_threshold"},
		{"history tail", func(c *Config) { c.Engine.HistoryTail = -1 }, "history_tail"},
		{"propagation", func(c *Config) { c.Engine.PropagationThreshold = 1.5 }, "propagation_threshold"},
		{"empty cast", func(c *Config) { c.Cast.Characters = nil }, "cast.characters"},
		{"duplicate cast", func(c *Config) {
			c.Cast.Characters = append(c.Cast.Characters, c.Cast.Characters[0])
		}, "duplicate cast character"},
		{"rate limit", func(c *Config) { c.Gemini.Burst = 0 }, "rate limit"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
