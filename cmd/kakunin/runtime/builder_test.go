package runtime

import (
	"context"
	"testing"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/confirm"
	"github.com/harunnryd/kakunin/internal/parser"
)

func TestBuilder_WithMethods(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}

	builder := NewRuntimeBuilder().
		WithContext(ctx).
		WithConfig(cfg).
		WithWorkspace("ws").
		WithVersion("v1").
		WithPersistence(false).
		WithParser(fixedParser{})

	impl, ok := builder.(*DefaultRuntimeBuilder)
	if !ok {
		t.Fatal("Builder is not DefaultRuntimeBuilder")
	}
	if impl.ctx != ctx || impl.cfg != cfg || impl.workspaceID != "ws" {
		t.Error("With* did not set context, config and workspace")
	}
	if impl.opts.Version != "v1" || impl.opts.Persist || impl.opts.Parser == nil {
		t.Errorf("options = %+v", impl.opts)
	}
}

func TestBuilder_Build_MissingConfig(t *testing.T) {
	if _, err := NewRuntimeBuilder().WithContext(context.Background()).Build(); err == nil {
		t.Error("Build() should return error when config is missing")
	}
}

func TestBuilder_Build_DefaultWorkspace(t *testing.T) {
	components, err := NewRuntimeBuilder().WithConfig(testConfig(t)).Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	defer components.Stop()

	if components.WorkspaceID != DefaultWorkspaceID {
		t.Errorf("WorkspaceID = %v, want %v", components.WorkspaceID, DefaultWorkspaceID)
	}
	if components.StoreWorker == nil {
		t.Error("StoreWorker should be initialized when persistence is on")
	}
	if _, ok := components.Parser.(*parser.ModelParser); !ok {
		t.Errorf("Parser = %T, want *parser.ModelParser", components.Parser)
	}
}

func TestBuilder_Build_InMemory(t *testing.T) {
	components, err := NewRuntimeBuilder().
		WithConfig(testConfig(t)).
		WithPersistence(false).
		WithParser(fixedParser{}).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	defer components.Stop()

	if components.StoreWorker != nil {
		t.Error("StoreWorker should be nil without persistence")
	}
	if err := components.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	meta, err := components.Registry.Create(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	err = components.Registry.With(context.Background(), meta.ID, func(f *confirm.Flow) error {
		res := f.Start(context.Background(), "a cli tool")
		if !res.Success {
			t.Errorf("Start() failed: %s", res.Error)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With() failed: %v", err)
	}
}

func TestBuilder_Build_BadParserMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Parser.Mode = "unknown"
	if _, err := NewRuntimeBuilder().WithConfig(cfg).Build(); err == nil {
		t.Error("Build() should fail for an unknown parser mode")
	}
}
