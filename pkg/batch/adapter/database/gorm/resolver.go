package gorm

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
)

// ConnectionResolver routes a connection name to the provider of its configured type.
type ConnectionResolver struct {
	cfg       *config.Config
	providers map[string]database.DBProvider
}

// ResolverParams are the dependencies of NewConnectionResolver.
type ResolverParams struct {
	fx.In
	Config    *config.Config
	Providers []database.DBProvider `group:"db_providers"`
}

// NewConnectionResolver indexes the providers by type.
func NewConnectionResolver(p ResolverParams) *ConnectionResolver {
	providers := make(map[string]database.DBProvider, len(p.Providers))
	for _, provider := range p.Providers {
		providers[provider.Type()] = provider
	}
	return &ConnectionResolver{cfg: p.Config, providers: providers}
}

func (r *ConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	dbConfig, err := DecodeDatabaseConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[dbConfig.Type]
	if !ok {
		return nil, fmt.Errorf("no provider for database type '%s' (connection '%s')", dbConfig.Type, name)
	}
	return provider.GetConnection(name)
}

// ResolveGorm resolves name and returns its gorm handle.
func (r *ConnectionResolver) ResolveGorm(ctx context.Context, name string) (*Connection, error) {
	conn, err := r.ResolveDBConnection(ctx, name)
	if err != nil {
		return nil, err
	}
	gc, ok := conn.(*Connection)
	if !ok {
		return nil, fmt.Errorf("connection '%s' is not a gorm connection", name)
	}
	return gc, nil
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	var lastErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
