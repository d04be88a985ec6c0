// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Chain rules: defined in genesis, immutable once the chain exists
//   - Node settings: runtime configuration, free to vary per run
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Storage backend names.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Config holds node-specific runtime configuration. These settings can
// change between runs without touching chain state, except Digest: the
// digest scheme must match the one the archive was sealed with.
type Config struct {
	// Core
	DataDir string `conf:"datadir"`
	Store   string `conf:"store"`  // memory or badger
	Digest  string `conf:"digest"` // rolling or blake3

	// Logging
	Log LogConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultConfig returns the default node configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Store:   StoreBadger,
		Digest:  "rolling",
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.dtkchain
//	macOS:   ~/Library/Application Support/DTKChain
//	Windows: %APPDATA%\DTKChain
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dtkchain"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "DTKChain")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "DTKChain")
		}
		return filepath.Join(home, "AppData", "Roaming", "DTKChain")
	default:
		return filepath.Join(home, ".dtkchain")
	}
}

// BlocksDir returns the block archive directory.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.DataDir, "blocks")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "dtkchain.conf")
}

// GenesisFile returns the genesis file path.
func (c *Config) GenesisFile() string {
	return filepath.Join(c.DataDir, "genesis.json")
}
