package cli

import (
	"fmt"

	"github.com/roach88/basket/internal/config"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/store/kvstore"
	"github.com/roach88/basket/internal/store/sqlite"
)

// openStore opens the backend selected by cfg.
func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		s, err := kvstore.Open(kvstore.Options{Path: cfg.Path})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}

// withStore opens the configured store, runs fn and closes the store.
func withStore(opts *RootOptions, fn func(store.Store) error) error {
	s, err := openStore(opts.Config.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer s.Close()
	return fn(s)
}
