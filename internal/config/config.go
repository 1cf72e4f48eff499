package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds runtime configuration. Values come from the environment and
// are overlaid by config.json in the config dir when present.
type Config struct {
	// ConfigDir is where config.json and the database live
	// (project-local .recallbox if present, else ~/.config/recallbox).
	ConfigDir string `json:"-"` // set at runtime
	// DBPath is the path to the memory database file.
	DBPath string `json:"db_path"`
	// Platform is the first namespace segment for contact memory
	// (e.g. "whatsapp").
	Platform string `json:"platform"`
	// BotName identifies the bot's own profile namespace.
	BotName string `json:"bot_name"`
	// ContextMemories is how many memories ContactContext includes.
	ContextMemories int `json:"context_memories"`
}

// DefaultConfigDir returns the default config directory.
func DefaultConfigDir() string {
	cwd, _ := os.Getwd()
	local := filepath.Join(cwd, ".recallbox")
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "recallbox")
}

// New builds config from env and optional config dir. configDir can be
// empty to use RECALLBOX_CONFIG_DIR or the default.
func New(configDir string) *Config {
	if configDir == "" {
		if d := os.Getenv("RECALLBOX_CONFIG_DIR"); d != "" {
			configDir = d
		} else {
			configDir = DefaultConfigDir()
		}
	}

	cfg := &Config{
		ConfigDir:       configDir,
		DBPath:          filepath.Join(configDir, "memory.db"),
		Platform:        "whatsapp",
		BotName:         "assistant",
		ContextMemories: 5,
	}
	if v := os.Getenv("RECALLBOX_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RECALLBOX_PLATFORM"); v != "" {
		cfg.Platform = v
	}
	if v := os.Getenv("RECALLBOX_BOT_NAME"); v != "" {
		cfg.BotName = v
	}
	if v := os.Getenv("RECALLBOX_CONTEXT_MEMORIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ContextMemories = n
		}
	}

	// Priority: env < config file. Keys missing from JSON leave the env
	// values untouched.
	configPath := filepath.Join(configDir, "config.json")
	if data, err := os.ReadFile(configPath); err == nil {
		_ = json.Unmarshal(data, cfg)
	}

	return cfg
}
