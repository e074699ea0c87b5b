package store

import (
	"fmt"

	"github.com/pawel/toolgate/internal/config"
)

// New creates a Store instance based on the configuration.
// Parameters:
//   - cfg: store configuration including driver and connection settings.
// Returns:
//   - Store: initialized store implementation.
//   - error: non-nil if the store cannot be created.
func New(cfg *config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "postgres":
		return NewGorm(cfg)
	case "dynamodb":
		return NewDynamo(cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
