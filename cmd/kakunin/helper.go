package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/kakunin/cmd/kakunin/runtime"
	"github.com/harunnryd/kakunin/cmd/kakunin/runtime/initializers"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/store"

	"github.com/spf13/cobra"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	return config.Load(cmd)
}

func executeWithRuntime(ctx context.Context, cmd *cobra.Command, persist bool, fn func(*runtime.RuntimeComponents) error) error {
	workspaceID := runtime.ResolveWorkspaceID(cmd)

	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	components, err := runtime.NewRuntimeBuilder().
		WithContext(ctx).
		WithConfig(loadedCfg).
		WithWorkspace(workspaceID).
		WithVersion(version).
		WithPersistence(persist).
		Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer components.Stop()

	if err := components.Start(); err != nil {
		return fmt.Errorf("failed to start runtime components: %w", err)
	}
	return fn(components)
}

// executeWithStore opens the workspace store alone; it fails while a daemon
// or another dialog holds the workspace lock.
func executeWithStore(cmd *cobra.Command, fn func(*store.Worker) error) error {
	workspaceID := runtime.ResolveWorkspaceID(cmd)

	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	component, err := initializers.NewStoreInitializer().Initialize(commandContext(cmd), loadedCfg, workspaceID)
	if err != nil {
		return err
	}
	worker := component.(*store.Worker)
	defer worker.Stop()

	return fn(worker)
}
