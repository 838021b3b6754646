package store

import (
	"context"
	"fmt"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverKuzu   = "kuzu"
)

// Config selects and locates the backing store.
type Config struct {
	Driver string `koanf:"driver" yaml:"driver"`
	Path   string `koanf:"path" yaml:"path"`
}

// Open creates the configured store and initializes its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", DriverMemory:
		s = NewMemStore()
	case DriverKuzu:
		s, err = openKuzuStore(cfg.Path)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.InitSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
