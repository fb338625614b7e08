package backend

import (
	"context"

	"travelai/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the workspace instance and its lifecycle hooks
type BackendResult struct {
	Workspace store.Store
	// Ready reports whether the workspace can serve requests.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates workspaces based on configuration
type Factory interface {
	// CreateBackend creates a workspace instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for workspace creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDSN string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
