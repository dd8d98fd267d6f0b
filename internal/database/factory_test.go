package database

import (
	"path/filepath"
	"testing"

	"media-broker/internal/config"
)

func TestNewRegistryFromConfig(t *testing.T) {
	t.Run("memory database is migrated", func(t *testing.T) {
		got, err := NewRegistryFromConfig(config.DatabaseConfig{Type: "memory"}, nil)
		if err != nil {
			t.Fatalf("NewRegistryFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database creates parent directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "media.db")
		got, err := NewRegistryFromConfig(config.DatabaseConfig{Type: "sqlite", Path: path, PoolSize: 2}, nil)
		if err != nil {
			t.Fatalf("NewRegistryFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if got.Path() != path {
			t.Errorf("Path() = %q, want %q", got.Path(), path)
		}
		if err := got.CheckMigrations(); err == nil {
			t.Error("CheckMigrations() expected error before migrate")
		}
	})

	t.Run("sqlite database without path", func(t *testing.T) {
		got, err := NewRegistryFromConfig(config.DatabaseConfig{Type: "sqlite"}, nil)
		if err == nil {
			t.Error("NewRegistryFromConfig() expected error for missing path, got nil")
		}
		if got != nil {
			t.Error("NewRegistryFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		got, err := NewRegistryFromConfig(config.DatabaseConfig{Type: "unknown"}, nil)
		if err == nil {
			t.Error("NewRegistryFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewRegistryFromConfig() should return nil on error")
			got.Close()
		}
	})
}
