package runtime

import (
	"context"
	"testing"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/parser"
)

type fixedParser struct{}

func (fixedParser) Parse(_ context.Context, raw string) (*parser.Result, error) {
	return &parser.Result{Summary: raw, ProjectType: "cli", Features: []string{"one"}}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 18090},
		Models: config.ModelsConfig{
			Default:  "local-llama",
			Registry: []config.ModelRegistry{{Name: "local-llama", Provider: "ollama"}},
		},
		Store:  config.StoreConfig{LockTimeout: "200ms", LockRetry: "10ms"},
		Daemon: config.DaemonConfig{WorkspacePath: t.TempDir()},
	}
}
