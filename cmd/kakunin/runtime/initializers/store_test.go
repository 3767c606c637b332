package initializers

import (
	"context"
	"testing"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/store"
)

func TestStoreInitializer_Metadata(t *testing.T) {
	init := NewStoreInitializer()
	if got := init.Name(); got != "store" {
		t.Errorf("Name() = %v, want store", got)
	}
	if deps := init.Dependencies(); len(deps) != 0 {
		t.Errorf("Dependencies() = %v, want none", deps)
	}
}

func TestStoreInitializer_Initialize(t *testing.T) {
	cfg := &config.Config{
		Daemon: config.DaemonConfig{WorkspacePath: t.TempDir()},
		Store:  config.StoreConfig{LockTimeout: "200ms", LockRetry: "10ms"},
	}

	component, err := NewStoreInitializer().Initialize(context.Background(), cfg, "test-workspace")
	if err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	worker, ok := component.(*store.Worker)
	if !ok {
		t.Fatalf("Initialize() returned %T, want *store.Worker", component)
	}
	defer worker.Stop()

	if !worker.IsLockHeld() {
		t.Error("store worker should hold the workspace lock")
	}
}

func TestStoreInitializer_NilConfig(t *testing.T) {
	if _, err := NewStoreInitializer().Initialize(context.Background(), nil, "test"); err == nil {
		t.Error("expected error for nil config")
	}
}
