package database

import (
	"fmt"

	"media-broker/internal/broker"
	"media-broker/internal/config"
)

// NewRegistryFromConfig creates a SQLiteRegistry based on the database
// config type. An in-memory registry is always migrated since nothing else
// can reach it.
func NewRegistryFromConfig(cfg config.DatabaseConfig, clock broker.Clock) (*SQLiteRegistry, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		return NewSQLiteRegistry(cfg.Path, cfg.PoolSize, clock)
	case "memory":
		reg, err := NewSQLiteRegistry(memoryPath, 1, clock)
		if err != nil {
			return nil, err
		}
		if err := reg.Migrate(); err != nil {
			reg.Close()
			return nil, fmt.Errorf("migrating memory database: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
