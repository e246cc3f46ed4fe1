package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/tigerroll/salesync/pkg/batch/adapter/storage/config"
	coreconfig "github.com/tigerroll/salesync/pkg/batch/core/config"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// StoreFactory opens an ObjectStore for a storage type.
type StoreFactory func(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error)

var (
	storeRegistry = make(map[string]StoreFactory)
	storeMutex    sync.RWMutex
)

// RegisterStore registers the factory for storeType. Adapter packages call it from init.
func RegisterStore(storeType string, factory StoreFactory) {
	storeMutex.Lock()
	defer storeMutex.Unlock()
	if _, exists := storeRegistry[storeType]; exists {
		logger.Warnf("Object store '%s' registered twice; the later one wins.", storeType)
	}
	storeRegistry[storeType] = factory
}

// DecodeConfig decodes the "storage" section.
func DecodeConfig(cfg *coreconfig.Config) (config.StorageConfig, error) {
	var sc config.StorageConfig
	if err := mapstructure.Decode(cfg.Salesync.Storage, &sc); err != nil {
		return sc, fmt.Errorf("failed to decode storage config: %w", err)
	}
	if sc.Type == "" {
		sc.Type = "local"
	}
	return sc, nil
}

// Open returns the ObjectStore registered for cfg.Type.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	storeMutex.RLock()
	factory, ok := storeRegistry[cfg.Type]
	storeMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no object store registered for storage type: %s", cfg.Type)
	}
	store, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s object store: %w", cfg.Type, err)
	}
	logger.Debugf("Opened %s object store.", cfg.Type)
	return store, nil
}
