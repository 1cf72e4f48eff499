package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := New(dir)

	assert.Equal(t, dir, cfg.ConfigDir)
	assert.Equal(t, filepath.Join(dir, "memory.db"), cfg.DBPath)
	assert.Equal(t, "whatsapp", cfg.Platform)
	assert.Equal(t, "assistant", cfg.BotName)
	assert.Equal(t, 5, cfg.ContextMemories)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECALLBOX_DB_PATH", "/tmp/other.db")
	t.Setenv("RECALLBOX_PLATFORM", "telegram")
	t.Setenv("RECALLBOX_BOT_NAME", "hattie")
	t.Setenv("RECALLBOX_CONTEXT_MEMORIES", "9")

	cfg := New(dir)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, "telegram", cfg.Platform)
	assert.Equal(t, "hattie", cfg.BotName)
	assert.Equal(t, 9, cfg.ContextMemories)
}

func TestInvalidContextMemoriesIgnored(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECALLBOX_CONTEXT_MEMORIES", "not-a-number")
	cfg := New(dir)
	assert.Equal(t, 5, cfg.ContextMemories)

	t.Setenv("RECALLBOX_CONTEXT_MEMORIES", "-3")
	cfg = New(dir)
	assert.Equal(t, 5, cfg.ContextMemories)
}

func TestConfigFileWinsOverEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECALLBOX_PLATFORM", "telegram")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"platform": "signal", "context_memories": 3}`), 0o644))

	cfg := New(dir)
	assert.Equal(t, "signal", cfg.Platform)
	assert.Equal(t, 3, cfg.ContextMemories)
	// Keys absent from the file keep their env/default values.
	assert.Equal(t, "assistant", cfg.BotName)
}

func TestConfigDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECALLBOX_CONFIG_DIR", dir)
	cfg := New("")
	assert.Equal(t, dir, cfg.ConfigDir)
	assert.Equal(t, filepath.Join(dir, "memory.db"), cfg.DBPath)
}
