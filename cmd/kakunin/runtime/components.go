package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/kakunin/cmd/kakunin/runtime/initializers"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/confirm"
	"github.com/harunnryd/kakunin/internal/parser"
	"github.com/harunnryd/kakunin/internal/registry"
	"github.com/harunnryd/kakunin/internal/store"
	"github.com/harunnryd/kakunin/internal/telemetry"
)

// Options tune NewRuntimeComponents.
type Options struct {
	Version string
	Persist bool
	Parser  parser.Parser
}

type RuntimeComponents struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	Config      *config.Config
	WorkspaceID string

	StoreWorker *store.Worker
	Parser      parser.Parser
	Registry    *registry.Registry

	shutdownTelemetry telemetry.ShutdownFunc
}

func NewRuntimeComponents(ctx context.Context, cfg *config.Config, workspaceID string, opts Options) (*RuntimeComponents, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	components := &RuntimeComponents{
		Ctx:         ctx,
		Cancel:      cancel,
		Config:      cfg,
		WorkspaceID: workspaceID,
	}

	telemetryComponent, err := initializers.NewTelemetryInitializer(opts.Version).Initialize(ctx, cfg, workspaceID)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	components.shutdownTelemetry = telemetryComponent.(telemetry.ShutdownFunc)

	if opts.Parser != nil {
		components.Parser = opts.Parser
	} else {
		parserComponent, err := initializers.NewParserInitializer().Initialize(ctx, cfg, workspaceID)
		if err != nil {
			components.cleanup()
			return nil, fmt.Errorf("init parser: %w", err)
		}
		components.Parser = parserComponent.(parser.Parser)
	}

	registryOpts := []registry.Option{}
	if opts.Persist {
		storeComponent, err := initializers.NewStoreInitializer().Initialize(ctx, cfg, workspaceID)
		if err != nil {
			components.cleanup()
			return nil, fmt.Errorf("init store worker: %w", err)
		}
		components.StoreWorker = storeComponent.(*store.Worker)
		registryOpts = append(registryOpts, registry.WithStore(components.StoreWorker))
	}

	p := components.Parser
	components.Registry = registry.New(func() *confirm.Flow { return confirm.NewFlow(p) }, registryOpts...)

	slog.Debug("Runtime components initialized", "workspace", workspaceID, "persist", opts.Persist)
	return components, nil
}

// Start restores persisted sessions into the registry.
func (r *RuntimeComponents) Start() error {
	if r.Registry == nil {
		return fmt.Errorf("registry not initialized")
	}
	if err := r.Registry.Load(r.Ctx); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	return nil
}

func (r *RuntimeComponents) Stop() {
	slog.Debug("Stopping runtime components...")

	r.Cancel()

	if r.StoreWorker != nil {
		r.StoreWorker.Stop()
		r.StoreWorker = nil
	}

	if r.shutdownTelemetry != nil {
		if err := r.shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("Failed to flush telemetry", "error", err)
		}
		r.shutdownTelemetry = nil
	}
}

func (r *RuntimeComponents) cleanup() {
	r.Stop()
}
