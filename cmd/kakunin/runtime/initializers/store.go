package initializers

import (
	"context"
	"fmt"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/store"
)

type StoreInitializer struct{}

func NewStoreInitializer() *StoreInitializer {
	return &StoreInitializer{}
}

func (si *StoreInitializer) Name() string {
	return "store"
}

func (si *StoreInitializer) Dependencies() []string {
	return []string{}
}

// Initialize acquires the workspace lock and starts the store worker.
func (si *StoreInitializer) Initialize(ctx context.Context, cfg *config.Config, workspaceID string) (interface{}, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	runtimeCfg, err := store.RuntimeConfigFrom(cfg.Store)
	if err != nil {
		return nil, err
	}

	worker, err := store.NewWorker(workspaceID, cfg.Daemon.WorkspacePath, runtimeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create store worker: %w", err)
	}
	worker.Start()
	return worker, nil
}
