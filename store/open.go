package store

import (
	"fmt"

	"github.com/use-agent/mediatap/config"
)

// Open builds the backend selected by cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.MinURLLength), nil
	case "sqlite":
		return OpenSQLite(cfg.Path, cfg.MinURLLength)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
