package storage

import (
	"context"
	"fmt"

	"github.com/sekai02/redcloud-pages/internal/config"
)

// Open builds the backend selected by cfg.Type.
func Open(ctx context.Context, cfg config.Backend) (Backend, error) {
	switch cfg.Type {
	case config.BackendMemory:
		return NewMemStore(), nil
	case config.BackendBadger:
		return NewBadgerStore(cfg.Path)
	case config.BackendDir:
		return NewDirStore(cfg.Path)
	case config.BackendS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported backend type %s", cfg.Type)
	}
}
