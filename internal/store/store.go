package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rickgao/parking-sync/internal/config"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("store: key not found")

// Store is a durable key/value store for JSON documents.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases the backend's resources.
	Close() error
}

// Open connects the backend selected by cfg.Type.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		s   Store
		err error
	)
	switch cfg.Type {
	case config.StoreMemory:
		s = NewMemory()
	case config.StoreFile:
		s, err = NewFile(cfg.File.Dir)
	case config.StorePostgres:
		s, err = NewPostgres(ctx, cfg.Postgres)
	case config.StoreRedis:
		s, err = NewRedis(ctx, cfg.Redis)
	case config.StoreMongo:
		s, err = NewMongo(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Type, err)
	}

	logger.Info("state store opened", zap.String("type", cfg.Type))
	return s, nil
}
