package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/daemon"
	"github.com/harunnryd/kakunin/internal/registry"
)

// DaemonRuntimeComponent runs the runtime inside the daemon lifecycle and
// hands its registry to the HTTP server.
type DaemonRuntimeComponent struct {
	mu          sync.RWMutex
	cfg         *config.Config
	workspaceID string
	version     string
	runtime     *RuntimeComponents
	initialized bool
	started     bool
	stopped     bool
}

func NewDaemonRuntimeComponent(workspaceID string, cfg *config.Config, version string) *DaemonRuntimeComponent {
	return &DaemonRuntimeComponent{
		cfg:         cfg,
		workspaceID: workspaceID,
		version:     version,
	}
}

func (c *DaemonRuntimeComponent) Name() string {
	return "Runtime"
}

func (c *DaemonRuntimeComponent) Dependencies() []string {
	return []string{}
}

func (c *DaemonRuntimeComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg == nil {
		return fmt.Errorf("runtime config not provided")
	}
	if c.workspaceID == "" {
		return fmt.Errorf("workspace id not provided")
	}
	if c.stopped {
		return fmt.Errorf("runtime component already stopped")
	}

	if c.runtime == nil {
		components, err := NewRuntimeBuilder().
			WithContext(ctx).
			WithConfig(c.cfg).
			WithWorkspace(c.workspaceID).
			WithVersion(c.version).
			Build()
		if err != nil {
			return fmt.Errorf("build runtime: %w", err)
		}
		c.runtime = components
	}

	c.initialized = true
	return nil
}

func (c *DaemonRuntimeComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return fmt.Errorf("runtime component not initialized")
	}
	if c.stopped {
		return fmt.Errorf("runtime component already stopped")
	}
	if c.started {
		return nil
	}

	if err := c.runtime.Start(); err != nil {
		return err
	}

	c.started = true
	return nil
}

func (c *DaemonRuntimeComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	if c.runtime != nil {
		c.runtime.Stop()
	}
	c.stopped = true
	c.started = false
	return nil
}

func (c *DaemonRuntimeComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	r := c.runtime
	initialized := c.initialized
	started := c.started
	stopped := c.stopped
	c.mu.RUnlock()

	unhealthy := func(format string, args ...any) (*daemon.ComponentHealth, error) {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf(format, args...)}, nil
	}

	switch {
	case r == nil:
		return unhealthy("runtime components not configured")
	case !initialized:
		return unhealthy("not initialized")
	case stopped:
		return unhealthy("stopped")
	case !started:
		return unhealthy("not started")
	}

	if r.StoreWorker != nil {
		if !r.StoreWorker.IsLockHeld() {
			return unhealthy("store lock not held")
		}
		if !r.StoreWorker.IsRunning() {
			return unhealthy("store worker not running")
		}
	}
	if r.Parser == nil {
		return unhealthy("parser not initialized")
	}

	return &daemon.ComponentHealth{Name: c.Name(), Healthy: true}, nil
}

// Registry returns the session registry once the runtime is initialized.
func (c *DaemonRuntimeComponent) Registry() (*registry.Registry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.runtime == nil || !c.initialized {
		return nil, fmt.Errorf("runtime component not initialized")
	}
	if c.stopped {
		return nil, fmt.Errorf("runtime component already stopped")
	}
	return c.runtime.Registry, nil
}
