package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/kakunin/internal/api"
	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/daemon"
	"github.com/harunnryd/kakunin/internal/registry"
)

// RegistrySource hands out the session registry once its owning component
// has been initialized.
type RegistrySource interface {
	Registry() (*registry.Registry, error)
}

// HealthReporter is satisfied by *daemon.Daemon.
type HealthReporter interface {
	HealthReport(ctx context.Context) map[string]any
}

type HTTPServerComponent struct {
	reporter     HealthReporter
	source       RegistrySource
	cfg          *config.ServerConfig
	dependencies []string
	server       *api.Server
	shutdownTTL  string
	initialized  bool
	started      bool
	mu           sync.RWMutex
}

func NewHTTPServerComponent(reporter HealthReporter, source RegistrySource, cfg *config.ServerConfig) *HTTPServerComponent {
	return NewHTTPServerComponentWithDependencies(reporter, source, cfg, []string{"Runtime"})
}

func NewHTTPServerComponentWithDependencies(reporter HealthReporter, source RegistrySource, cfg *config.ServerConfig, dependencies []string) *HTTPServerComponent {
	deps := make([]string, len(dependencies))
	copy(deps, dependencies)
	return &HTTPServerComponent{
		reporter:     reporter,
		source:       source,
		cfg:          cfg,
		dependencies: deps,
	}
}

func (h *HTTPServerComponent) Name() string {
	return "HTTPServer"
}

func (h *HTTPServerComponent) Dependencies() []string {
	deps := make([]string, len(h.dependencies))
	copy(deps, h.dependencies)
	return deps
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg == nil {
		return fmt.Errorf("server config not provided")
	}
	if h.source == nil {
		return fmt.Errorf("registry source not provided")
	}
	reg, err := h.source.Registry()
	if err != nil {
		return fmt.Errorf("resolve session registry: %w", err)
	}

	server, err := api.NewServer(*h.cfg, reg)
	if err != nil {
		return err
	}
	if h.reporter != nil {
		server.ReportComponents(h.reporter.HealthReport)
	}

	h.server = server
	h.shutdownTTL = h.cfg.ShutdownTimeout
	h.initialized = true
	slog.Info("HTTPServer initialized", "component", h.Name(), "addr", server.Addr())
	return nil
}

func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("HTTPServer not initialized")
	}
	h.started = true
	return nil
}

// Serve blocks in ListenAndServe until Stop shuts the listener down.
func (h *HTTPServerComponent) Serve(ctx context.Context) error {
	h.mu.RLock()
	server := h.server
	started := h.started
	h.mu.RUnlock()

	if !started {
		return fmt.Errorf("HTTPServer not started")
	}
	return server.ListenAndServe()
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil
	}

	shutdownTimeout, err := config.DurationOrDefault(h.shutdownTTL, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPServer shutdown error", "component", h.Name(), "error", err)
		return err
	}

	h.started = false
	slog.Info("HTTPServer stopped", "component", h.Name())
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.initialized {
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !h.started {
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: h.Name(), Healthy: true}, nil
}
