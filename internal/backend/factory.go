package backend

import (
	"context"
	"fmt"

	"travelai/internal/log"
	"travelai/internal/store/memory"
	"travelai/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new workspace factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentStorage),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := sqlite.New(config.SQLiteDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite workspace: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite workspace", "dsn", config.SQLiteDSN)

	return &BackendResult{
		Workspace: repo,
		Ready:     repo.Ping,
		Cleanup:   repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	st := memory.New()

	f.logger.Info("Initialized memory workspace")

	return &BackendResult{
		Workspace: st,
		Cleanup:   st.Close,
	}, nil
}
