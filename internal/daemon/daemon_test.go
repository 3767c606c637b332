package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/kakunin/internal/config"
)

type mockComponent struct {
	name         string
	dependencies []string
	initCalled   bool
	startCalled  bool
	stopCalled   bool
	initError    error
	startError   error
	stopError    error
	healthError  error
	healthResult *ComponentHealth
	initOrder    *[]string
}

func newMockComponent(name string, dependencies []string) *mockComponent {
	return &mockComponent{
		name:         name,
		dependencies: dependencies,
		healthResult: &ComponentHealth{Name: name, Healthy: true},
	}
}

func (m *mockComponent) Name() string           { return m.name }
func (m *mockComponent) Dependencies() []string { return m.dependencies }

func (m *mockComponent) Init(ctx context.Context) error {
	m.initCalled = true
	if m.initOrder != nil {
		*m.initOrder = append(*m.initOrder, m.name)
	}
	return m.initError
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.startCalled = true
	return m.startError
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.stopCalled = true
	return m.stopError
}

func (m *mockComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	return m.healthResult, m.healthError
}

// servingComponent blocks in Serve until stopped, or fails with serveErr.
type servingComponent struct {
	*mockComponent
	serveErr error
	stopped  chan struct{}
	once     sync.Once
}

func newServingComponent(name string, serveErr error) *servingComponent {
	return &servingComponent{
		mockComponent: newMockComponent(name, nil),
		serveErr:      serveErr,
		stopped:       make(chan struct{}),
	}
}

func (s *servingComponent) Serve(ctx context.Context) error {
	if s.serveErr != nil {
		return s.serveErr
	}
	<-s.stopped
	return nil
}

func (s *servingComponent) Stop(ctx context.Context) error {
	s.once.Do(func() { close(s.stopped) })
	return s.mockComponent.Stop(ctx)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Daemon: config.DaemonConfig{WorkspacePath: t.TempDir(), ShutdownTimeout: "2s"},
	}
}

func TestNewDaemon(t *testing.T) {
	tests := []struct {
		name        string
		workspaceID string
		cfg         *config.Config
		wantErr     bool
	}{
		{name: "valid daemon", workspaceID: "test-workspace", cfg: &config.Config{}},
		{name: "empty workspace ID", workspaceID: "", cfg: &config.Config{}, wantErr: true},
		{name: "nil config", workspaceID: "test-workspace", cfg: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDaemon(tt.workspaceID, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDaemon() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && d.Health() != StatusStarting {
				t.Errorf("Health = %v, want %v", d.Health(), StatusStarting)
			}
		})
	}
}

func TestValidateConfig_ResolvesDefaultWorkspaceRoot(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	workspaceID := fmt.Sprintf("test-%d", time.Now().UnixNano())
	d, err := NewDaemon(workspaceID, &config.Config{Server: config.ServerConfig{Port: 8080}})
	if err != nil {
		t.Fatalf("NewDaemon() failed: %v", err)
	}
	if err := d.validateConfig(); err != nil {
		t.Fatalf("validateConfig() failed: %v", err)
	}

	expected := filepath.Join(tmpHome, ".kakunin", "workspaces", workspaceID)
	if _, err := os.Stat(expected); err != nil {
		t.Fatalf("expected workspace path to exist at %s: %v", expected, err)
	}
}

func TestValidateConfig_RejectsBadPort(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 0
	d, _ := NewDaemon("test", cfg)
	if err := d.validateConfig(); err == nil {
		t.Fatal("expected invalid port error")
	}
}

func TestAddComponent(t *testing.T) {
	d, _ := NewDaemon("test", &config.Config{})

	d.AddComponent(newMockComponent("Comp1", nil))
	d.AddComponent(newMockComponent("Comp2", []string{"Comp1"}))

	if len(d.components) != 2 {
		t.Errorf("components = %v, want 2", len(d.components))
	}
	if d.shutdownOrder[0] != "Comp2" {
		t.Errorf("shutdownOrder[0] = %v, want Comp2", d.shutdownOrder[0])
	}
}

func TestInitializeComponents_DependencyOrder(t *testing.T) {
	d, _ := NewDaemon("test", testConfig(t))

	var order []string
	http := newMockComponent("HTTPServer", []string{"Runtime"})
	http.initOrder = &order
	runtime := newMockComponent("Runtime", nil)
	runtime.initOrder = &order

	d.AddComponent(http)
	d.AddComponent(runtime)

	if err := d.initializeComponents(context.Background()); err != nil {
		t.Fatalf("initializeComponents() error = %v", err)
	}
	if len(order) != 2 || order[0] != "Runtime" || order[1] != "HTTPServer" {
		t.Fatalf("init order = %v, want [Runtime HTTPServer]", order)
	}
}

func TestInitializeComponents_CircularDependency(t *testing.T) {
	d, _ := NewDaemon("test", testConfig(t))
	d.AddComponent(newMockComponent("Comp1", []string{"Comp2"}))
	d.AddComponent(newMockComponent("Comp2", []string{"Comp1"}))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("expected error for circular dependency, got nil")
	}
}

func TestInitializeComponents_MissingDependency(t *testing.T) {
	d, _ := NewDaemon("test", testConfig(t))
	d.AddComponent(newMockComponent("Comp", []string{"NonExistent"}))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("expected error for missing dependency, got nil")
	}
}

func TestComponentHealth(t *testing.T) {
	d, _ := NewDaemon("test", testConfig(t))

	comp1 := newMockComponent("Comp1", nil)
	comp2 := newMockComponent("Comp2", nil)
	comp2.healthResult.Healthy = false
	comp2.healthResult.Error = fmt.Errorf("mock error")
	comp3 := newMockComponent("Comp3", nil)
	comp3.healthResult = nil
	comp3.healthError = errors.New("probe failed")

	d.AddComponent(comp1)
	d.AddComponent(comp2)
	d.AddComponent(comp3)

	healths := d.ComponentHealth(context.Background())
	if len(healths) != 3 {
		t.Fatalf("ComponentHealth() returned %v healths, want 3", len(healths))
	}
	if !healths["Comp1"].Healthy {
		t.Error("Comp1 should be healthy")
	}
	if healths["Comp2"].Healthy || healths["Comp2"].Error == nil {
		t.Error("Comp2 should be unhealthy with an error")
	}
	if healths["Comp3"].Healthy || healths["Comp3"].Error == nil {
		t.Error("Comp3 should be unhealthy when its probe fails")
	}

	report := d.HealthReport(context.Background())
	entry := report["Comp2"].(map[string]any)
	if entry["error"] != "mock error" {
		t.Errorf("report error = %v, want mock error", entry["error"])
	}
}

func TestRollback(t *testing.T) {
	d, _ := NewDaemon("test", testConfig(t))

	comp1 := newMockComponent("Comp1", nil)
	comp2 := newMockComponent("Comp2", nil)
	d.AddComponent(comp1)
	d.AddComponent(comp2)

	d.rollback(context.Background())

	if !comp1.stopCalled || !comp2.stopCalled {
		t.Error("Stop() was not called on every component during rollback")
	}
	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want StatusStopped", d.Health())
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	d, _ := NewDaemon("test", testConfig(t))

	comp := newMockComponent("Runtime", nil)
	srv := newServingComponent("HTTPServer", nil)
	srv.dependencies = []string{"Runtime"}
	d.AddComponent(comp)
	d.AddComponent(srv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.Health() != StatusRunning {
		if time.Now().After(deadline) {
			t.Fatal("daemon never reached running state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}

	if !comp.initCalled || !comp.startCalled || !comp.stopCalled {
		t.Error("Runtime did not go through init/start/stop")
	}
	if !srv.stopCalled {
		t.Error("HTTPServer was not stopped")
	}
	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want StatusStopped", d.Health())
	}
}

func TestStart_ServeFailureShutsDown(t *testing.T) {
	d, _ := NewDaemon("test", testConfig(t))

	comp := newMockComponent("Runtime", nil)
	srv := newServingComponent("HTTPServer", errors.New("address in use"))
	d.AddComponent(comp)
	d.AddComponent(srv)

	err := d.Start(context.Background())
	if err == nil {
		t.Fatal("expected serve failure to be returned")
	}
	if !comp.stopCalled {
		t.Error("Runtime was not stopped after serve failure")
	}
}

func TestStart_InitFailureRollsBack(t *testing.T) {
	d, _ := NewDaemon("test", testConfig(t))

	comp1 := newMockComponent("Comp1", nil)
	comp2 := newMockComponent("Comp2", []string{"Comp1"})
	comp2.initError = errors.New("boom")
	d.AddComponent(comp1)
	d.AddComponent(comp2)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected init failure")
	}
	if comp1.startCalled {
		t.Error("Comp1 must not start after an init failure")
	}
	if !comp1.stopCalled {
		t.Error("Comp1 was not rolled back")
	}
}

func TestComponentLookup(t *testing.T) {
	d, _ := NewDaemon("test", &config.Config{})
	d.AddComponent(newMockComponent("Comp1", nil))

	if d.Component("Comp1") == nil {
		t.Error("Component(Comp1) = nil")
	}
	if d.Component("NonExistent") != nil {
		t.Error("Component(NonExistent) should be nil")
	}
}
