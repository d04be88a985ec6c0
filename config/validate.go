package config

import (
	"fmt"

	"github.com/dtklabs/dtkchain/pkg/digest"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is required")
	}
	if cfg.Store != StoreMemory && cfg.Store != StoreBadger {
		return fmt.Errorf("store must be %q or %q", StoreMemory, StoreBadger)
	}
	if _, err := digest.ForName(cfg.Digest); err != nil {
		return err
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}

	return nil
}
