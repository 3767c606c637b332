package initializers

import (
	"context"
	"fmt"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/telemetry"
)

type TelemetryInitializer struct {
	version string
}

func NewTelemetryInitializer(version string) *TelemetryInitializer {
	return &TelemetryInitializer{version: version}
}

func (ti *TelemetryInitializer) Name() string {
	return "telemetry"
}

func (ti *TelemetryInitializer) Dependencies() []string {
	return []string{}
}

// Initialize installs the tracer provider and returns its telemetry.ShutdownFunc.
func (ti *TelemetryInitializer) Initialize(ctx context.Context, cfg *config.Config, workspaceID string) (interface{}, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, ti.version, nil)
	if err != nil {
		return nil, err
	}
	return shutdown, nil
}
