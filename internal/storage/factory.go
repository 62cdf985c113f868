package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config controls how the storage backend is opened.
type Config struct {
	Driver string
	DSN    string
	// AutoMigrate runs gorm's AutoMigrate after opening. Leave it off when
	// the schema is managed with the migrate command.
	AutoMigrate bool
	Logger      *zap.Logger
}

// Open constructs a Storage based on the given configuration.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	switch drv {
	case "memory":
		logger.Info("storage: using in-memory backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		logger.Info("storage: using gorm backend", zap.String("driver", drv))
		st, err := NewGormStorage(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := st.Migrate(ctx); err != nil {
				st.Close()
				return nil, fmt.Errorf("storage migrate: %w", err)
			}
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}

// OpenLocker returns the advisory locker matching the storage driver.
// Only postgres coordinates between processes; every other driver gets a
// lock that always succeeds.
func OpenLocker(ctx context.Context, cfg Config) (Locker, error) {
	if cfg.Driver != "postgres" {
		return NopLocker{}, nil
	}
	return NewPostgresLocker(ctx, cfg.DSN)
}
