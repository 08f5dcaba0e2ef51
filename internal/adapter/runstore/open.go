package runstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/usecase/workflow"
)

// Open builds the run store selected by cfg.Backend. The returned close
// function is always non-nil. cfg.Path names the database file; the file
// backend keeps runs.json in the same directory. A "memory" backend returns a nil store: the
// coordinator then keeps runs only for its retention window.
func Open(cfg config.StoreConfig) (domain.RunStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "memory":
		return nil, noop, nil
	case "file":
		s, err := workflow.NewFileStore(filepath.Dir(cfg.Path))
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, noop, fmt.Errorf("create store dir: %w", err)
		}
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: unknown store backend %q", domain.ErrConfig, cfg.Backend)
	}
}
