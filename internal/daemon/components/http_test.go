package components

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/confirm"
	"github.com/harunnryd/kakunin/internal/parser"
	"github.com/harunnryd/kakunin/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopParser struct{}

func (nopParser) Parse(context.Context, string) (*parser.Result, error) {
	return nil, errors.New("not used")
}

type staticSource struct {
	reg *registry.Registry
	err error
}

func (s staticSource) Registry() (*registry.Registry, error) {
	return s.reg, s.err
}

func newRegistry() *registry.Registry {
	return registry.New(func() *confirm.Flow { return confirm.NewFlow(nopParser{}) })
}

func TestNewHTTPServerComponent_DefaultDependencies(t *testing.T) {
	comp := NewHTTPServerComponent(nil, nil, &config.ServerConfig{Port: 8080})
	assert.Equal(t, []string{"Runtime"}, comp.Dependencies())
}

func TestNewHTTPServerComponentWithDependencies_Copy(t *testing.T) {
	custom := []string{"Runtime"}
	comp := NewHTTPServerComponentWithDependencies(nil, nil, &config.ServerConfig{Port: 8080}, custom)

	custom[0] = "Mutated"
	deps := comp.Dependencies()
	require.Len(t, deps, 1)
	assert.Equal(t, "Runtime", deps[0])

	deps[0] = "MutatedAgain"
	assert.Equal(t, "Runtime", comp.Dependencies()[0], "Dependencies() must return a copy")
}

func TestHTTPServerComponent_Lifecycle(t *testing.T) {
	comp := NewHTTPServerComponent(nil, staticSource{reg: newRegistry()}, &config.ServerConfig{Port: 18089})
	ctx := context.Background()

	health, err := comp.Health(ctx)
	require.NoError(t, err)
	assert.False(t, health.Healthy)

	require.NoError(t, comp.Init(ctx))
	require.NoError(t, comp.Start(ctx))
	health, _ = comp.Health(ctx)
	assert.True(t, health.Healthy)

	require.NoError(t, comp.Stop(ctx))
	health, _ = comp.Health(ctx)
	assert.False(t, health.Healthy)
}

func TestHTTPServerComponent_InitFailsWithoutRegistry(t *testing.T) {
	comp := NewHTTPServerComponent(nil, staticSource{err: errors.New("runtime down")}, &config.ServerConfig{Port: 8080})
	err := comp.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime down")
}

func TestHTTPServerComponent_ServeBeforeStart(t *testing.T) {
	comp := NewHTTPServerComponent(nil, staticSource{reg: newRegistry()}, &config.ServerConfig{Port: 8080})
	assert.Error(t, comp.Serve(context.Background()))
}
