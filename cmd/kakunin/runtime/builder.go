package runtime

import (
	"context"
	"fmt"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/parser"
)

type RuntimeBuilder interface {
	WithContext(ctx context.Context) RuntimeBuilder
	WithConfig(cfg *config.Config) RuntimeBuilder
	WithWorkspace(workspaceID string) RuntimeBuilder
	WithVersion(version string) RuntimeBuilder
	// WithPersistence toggles the workspace store; without it sessions live
	// only in memory.
	WithPersistence(enabled bool) RuntimeBuilder
	// WithParser overrides the parser selected by parser.mode.
	WithParser(p parser.Parser) RuntimeBuilder
	Build() (*RuntimeComponents, error)
}

type DefaultRuntimeBuilder struct {
	ctx         context.Context
	cfg         *config.Config
	workspaceID string
	opts        Options
}

func NewRuntimeBuilder() RuntimeBuilder {
	return &DefaultRuntimeBuilder{opts: Options{Persist: true}}
}

func (b *DefaultRuntimeBuilder) WithContext(ctx context.Context) RuntimeBuilder {
	b.ctx = ctx
	return b
}

func (b *DefaultRuntimeBuilder) WithConfig(cfg *config.Config) RuntimeBuilder {
	b.cfg = cfg
	return b
}

func (b *DefaultRuntimeBuilder) WithWorkspace(workspaceID string) RuntimeBuilder {
	b.workspaceID = workspaceID
	return b
}

func (b *DefaultRuntimeBuilder) WithVersion(version string) RuntimeBuilder {
	b.opts.Version = version
	return b
}

func (b *DefaultRuntimeBuilder) WithPersistence(enabled bool) RuntimeBuilder {
	b.opts.Persist = enabled
	return b
}

func (b *DefaultRuntimeBuilder) WithParser(p parser.Parser) RuntimeBuilder {
	b.opts.Parser = p
	return b
}

func (b *DefaultRuntimeBuilder) Build() (*RuntimeComponents, error) {
	if b.ctx == nil {
		b.ctx = context.Background()
	}

	if b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if b.workspaceID == "" {
		b.workspaceID = DefaultWorkspaceID
	}

	return NewRuntimeComponents(b.ctx, b.cfg, b.workspaceID, b.opts)
}
