package database

import (
	"fmt"
	"os"
	"path/filepath"

	"dipcp-go/internal/config"
	"dipcp-go/internal/dip"
)

// CacheFileName is the SQLite file inside the cache data directory.
const CacheFileName = "dip.db"

// NewStoreFromConfig opens the local cache selected by cfg.Type.
func NewStoreFromConfig(cfg config.CacheConfig) (dip.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite cache")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		return open(filepath.Join(cfg.DataDir, CacheFileName))
	case "memory":
		return open(":memory:")
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

func open(path string) (dip.Store, error) {
	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
