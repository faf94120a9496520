package storage

import (
	"context"
	"fmt"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/config"
)

// NewStore opens the backend selected by cfg.StorageBackend.
func NewStore(ctx context.Context, cfg *config.Config, logger internal.Logger) (Store, error) {
	switch cfg.StorageBackend {
	case config.BackendFile:
		s, err := NewFileStorage(cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		s, err := NewPostgresStorage(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
}
