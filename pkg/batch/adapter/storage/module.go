package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/salesync/pkg/batch/adapter/storage/config"
)

// NewObjectStore opens the configured store and closes it when the app stops.
func NewObjectStore(lc fx.Lifecycle, cfg config.StorageConfig) (ObjectStore, error) {
	store, err := Open(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return store.Close() }})
	return store, nil
}

// NewConfiguredFetcher builds the Fetcher from the selection and download settings.
func NewConfiguredFetcher(store ObjectStore, cfg config.StorageConfig) (*Fetcher, error) {
	policy, err := NewPrefixPolicy(cfg.Selection)
	if err != nil {
		return nil, err
	}
	return NewFetcher(store, policy, cfg.DownloadDir), nil
}

// Module provides the storage config, the ObjectStore and the Fetcher.
// Adapter packages must be imported for their registration.
var Module = fx.Options(
	fx.Provide(
		DecodeConfig,
		NewObjectStore,
		NewConfiguredFetcher,
	),
)
