package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadKeepsDefaultsForAbsentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
[jit]
suspend_on_defer = true
registers = ["rbx", "r12"]

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.JIT.SuspendOnDefer)
	assert.Equal(t, []string{"rbx", "r12"}, cfg.JIT.Registers)
	assert.True(t, cfg.JIT.Enabled)
	assert.True(t, cfg.JIT.OSR)
	assert.Equal(t, Default().JIT.CodeCacheBytes, cfg.JIT.CodeCacheBytes)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[jit\n"},
		{"register", "[jit]\nregisters = [\"xmm3\"]\n"},
		{"negative pool", "[jit]\nmax_pool_elements = -1\n"},
		{"level", "[log]\nlevel = \"loud\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := Default()
	cfg.JIT.VerifyMerges = true
	cfg.JIT.Registers = []string{"rbx", "rcx"}
	cfg.Log.Development = true
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# 是否启用 JIT 编译")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestNewLogger(t *testing.T) {
	for _, dev := range []bool{false, true} {
		logger, err := NewLogger(LogConfig{Level: "warn", Development: dev})
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(-1))
		assert.True(t, logger.Core().Enabled(1))
	}
	_, err := NewLogger(LogConfig{Level: "nope"})
	assert.Error(t, err)
}
