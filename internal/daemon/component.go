package daemon

import (
	"context"
)

type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   error  `json:"-"`
}

// Component is one unit of the daemon lifecycle. Init runs in dependency
// order, Start in registration order and Stop in reverse registration order.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}

// Server is implemented by components that block while serving, such as a
// listener. Serve must return nil once Stop has been called; any other return
// brings the daemon down.
type Server interface {
	Serve(ctx context.Context) error
}
