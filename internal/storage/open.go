package storage

import (
	"context"
	"fmt"

	"driveprov/internal/config"
)

// Open builds the Store selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.AppConfig) (Store, error) {
	switch cfg.Store.Backend {
	case config.BackendDrive:
		return NewDrive(ctx, cfg.Drive)
	case config.BackendMinIO:
		return NewMinIO(cfg.MinIO)
	case config.BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
