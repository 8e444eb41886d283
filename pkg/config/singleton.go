package config

import (
	"fmt"
	"sync"
)

var (
	// globalConfig holds the process configuration.
	globalConfig *Config

	// configMutex protects access to globalConfig.
	configMutex sync.RWMutex
)

// GetConfig returns the process configuration, or nil before SetConfig.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// SetConfig replaces the process configuration.
func SetConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = cfg
}

// ReloadConfig reloads the configuration from path. On error the current
// configuration is kept.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()

	return nil
}
