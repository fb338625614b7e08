package backend

import (
	"fmt"

	"travelai/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:      backendType,
		SQLiteDSN: appConfig.SQLiteDSN,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	if c.Type == SQLiteBackend {
		if c.SQLiteDSN == "" {
			return fmt.Errorf("SQLite DSN is required for sqlite backend")
		}
		if !config.IsMemoryDSN(c.SQLiteDSN) {
			return fmt.Errorf("SQLite DSN %q must be in-memory", c.SQLiteDSN)
		}
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend}
}
