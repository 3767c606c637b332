package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/store"

	"golang.org/x/sync/errgroup"
)

// Daemon owns the serve lifecycle of a workspace: it initializes components
// in dependency order, runs the serving ones and tears everything down on
// SIGINT/SIGTERM or when a server fails.
type Daemon struct {
	cfg           *config.Config
	workspaceID   string
	components    []Component
	shutdownOrder []string
	health        HealthStatus
	uptimeStart   time.Time
	mu            sync.RWMutex
	forceCleanup  bool
	stopOnce      sync.Once
	stopErr       error
}

func NewDaemon(workspaceID string, cfg *config.Config) (*Daemon, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace ID cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Daemon{
		workspaceID:   workspaceID,
		cfg:           cfg,
		components:    make([]Component, 0),
		shutdownOrder: make([]string, 0),
		health:        StatusStarting,
		uptimeStart:   time.Now(),
	}, nil
}

func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	d.shutdownOrder = append([]string{comp.Name()}, d.shutdownOrder...)
	slog.Info("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

// Start blocks until ctx is cancelled, a signal arrives or a serving
// component fails. A shutdown caused by ctx or a signal returns nil.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Kakunin daemon starting...", "workspace", d.workspaceID)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	d.preInitChecks()

	if err := d.initializeComponents(ctx); err != nil {
		d.rollback(context.Background())
		return fmt.Errorf("component initialization failed: %w", err)
	}

	shutdownTimeout, err := config.DurationOrDefault(d.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		d.rollback(context.Background())
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}

	if err := d.startComponents(ctx); err != nil {
		d.shutdown(context.Background(), shutdownTimeout)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("Kakunin daemon is running", "workspace", d.workspaceID, "components", len(d.components))

	g, gctx := errgroup.WithContext(ctx)
	for _, comp := range d.snapshotComponents() {
		srv, ok := comp.(Server)
		if !ok {
			continue
		}
		name := comp.Name()
		g.Go(func() error {
			if err := srv.Serve(gctx); err != nil {
				slog.Error("Component stopped serving", "component", name, "error", err)
				return fmt.Errorf("component %s: %w", name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Initiating graceful shutdown", "workspace", d.workspaceID, "reason", context.Cause(gctx))
		return d.shutdown(context.Background(), shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.uptimeStart)
}

func (d *Daemon) SetForceCleanup(force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forceCleanup = force
}

func (d *Daemon) ComponentHealth(ctx context.Context) map[string]*ComponentHealth {
	result := make(map[string]*ComponentHealth)
	for _, comp := range d.snapshotComponents() {
		health, err := comp.Health(ctx)
		if health == nil {
			health = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			health.Healthy = false
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

// HealthReport is ComponentHealth flattened for JSON.
func (d *Daemon) HealthReport(ctx context.Context) map[string]any {
	report := make(map[string]any)
	for name, h := range d.ComponentHealth(ctx) {
		entry := map[string]any{"healthy": h.Healthy}
		if h.Error != nil {
			entry["error"] = h.Error.Error()
		}
		report[name] = entry
	}
	return report
}

func (d *Daemon) Component(name string) Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.componentByName(name)
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) snapshotComponents() []Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Component, len(d.components))
	copy(out, d.components)
	return out
}

func (d *Daemon) componentByName(name string) Component {
	for _, comp := range d.components {
		if comp.Name() == name {
			return comp
		}
	}
	return nil
}

func (d *Daemon) validateConfig() error {
	if d.cfg.Server.Port < 1 || d.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", d.cfg.Server.Port)
	}

	workspacePath, err := store.GetWorkspacePath(d.workspaceID, d.cfg.Daemon.WorkspacePath)
	if err != nil {
		return fmt.Errorf("resolve workspace path: %w", err)
	}
	if err := os.MkdirAll(workspacePath, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	slog.Debug("Configuration validated", "workspace", d.workspaceID, "port", d.cfg.Server.Port)
	return nil
}

// preInitChecks clears lock files left behind by crashed instances. Failures
// are logged; the store lock acquisition reports a live holder anyway.
func (d *Daemon) preInitChecks() {
	d.mu.RLock()
	force := d.forceCleanup
	d.mu.RUnlock()

	workspacePath, err := store.GetWorkspacePath(d.workspaceID, d.cfg.Daemon.WorkspacePath)
	if err != nil {
		slog.Warn("Failed to resolve workspace path", "workspace", d.workspaceID, "error", err)
		return
	}
	staleLockTTL, err := config.DurationOrDefault(d.cfg.Daemon.StaleLockTTL, config.DefaultDaemonStaleLockTTL)
	if err != nil {
		slog.Warn("Invalid daemon stale lock ttl", "error", err)
		return
	}
	if err := store.CleanupStaleLocks(workspacePath, staleLockTTL, force); err != nil {
		slog.Warn("Failed to cleanup stale locks", "workspace", d.workspaceID, "error", err)
	}
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	if err := d.validateDependencies(); err != nil {
		return fmt.Errorf("dependency validation failed: %w", err)
	}

	initOrder, err := d.resolveInitOrder()
	if err != nil {
		return fmt.Errorf("failed to resolve init order: %w", err)
	}

	for _, name := range initOrder {
		comp := d.Component(name)
		if comp == nil {
			continue
		}
		if err := comp.Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", name, "error", err)
			return fmt.Errorf("component %s init failed: %w", name, err)
		}
		slog.Debug("Component initialized", "component", name)
	}
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	for _, comp := range d.snapshotComponents() {
		if err := comp.Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", comp.Name(), "error", err)
			return fmt.Errorf("component %s startup failed: %w", comp.Name(), err)
		}
		slog.Debug("Component started", "component", comp.Name())
	}
	return nil
}

// shutdown stops every component once, bounded by timeout.
func (d *Daemon) shutdown(ctx context.Context, timeout time.Duration) error {
	d.stopOnce.Do(func() {
		d.setHealth(StatusStopping)
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			d.stopComponents(shutdownCtx)
		}()

		select {
		case <-done:
			slog.Info("Graceful shutdown completed", "workspace", d.workspaceID)
		case <-shutdownCtx.Done():
			slog.Error("Shutdown timeout exceeded", "workspace", d.workspaceID, "timeout", timeout)
			d.stopErr = fmt.Errorf("shutdown timeout after %v", timeout)
		}
		d.setHealth(StatusStopped)
	})
	return d.stopErr
}

func (d *Daemon) stopComponents(ctx context.Context) {
	d.mu.RLock()
	order := make([]string, len(d.shutdownOrder))
	copy(order, d.shutdownOrder)
	d.mu.RUnlock()

	for _, name := range order {
		comp := d.Component(name)
		if comp == nil {
			continue
		}
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", name, "error", err)
			continue
		}
		slog.Debug("Component stopped", "component", name)
	}
}

func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back initialized components...", "workspace", d.workspaceID)
	d.stopOnce.Do(func() {
		d.stopComponents(ctx)
		d.setHealth(StatusStopped)
	})
}

func (d *Daemon) validateDependencies() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, comp := range d.components {
		for _, dep := range comp.Dependencies() {
			if d.componentByName(dep) == nil {
				return fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), dep)
			}
		}
	}
	return nil
}

func (d *Daemon) resolveInitOrder() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	order := []string{}

	var visit func(name string) error
	visit = func(name string) error {
		if visiting[name] {
			return fmt.Errorf("circular dependency detected involving %s", name)
		}
		if visited[name] {
			return nil
		}
		comp := d.componentByName(name)
		if comp == nil {
			return fmt.Errorf("component %s not found", name)
		}

		visiting[name] = true
		for _, dep := range comp.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, comp := range d.components {
		if err := visit(comp.Name()); err != nil {
			return nil, err
		}
	}

	slog.Debug("Initialization order resolved", "order", order)
	return order, nil
}
