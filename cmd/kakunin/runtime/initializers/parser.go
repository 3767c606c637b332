package initializers

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/model"
	"github.com/harunnryd/kakunin/internal/parser"
)

const (
	ParserModeModel   = "model"
	ParserModeCommand = "command"
)

// ParserInitializer builds the requirement parser selected by parser.mode.
type ParserInitializer struct{}

func NewParserInitializer() *ParserInitializer {
	return &ParserInitializer{}
}

func (pi *ParserInitializer) Name() string {
	return "parser"
}

func (pi *ParserInitializer) Dependencies() []string {
	return []string{}
}

func (pi *ParserInitializer) Initialize(ctx context.Context, cfg *config.Config, workspaceID string) (interface{}, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	timeout, err := config.DurationOrDefault(cfg.Parser.Timeout, config.DefaultParserTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse parser timeout: %w", err)
	}
	retryBackoff, err := config.DurationOrDefault(cfg.Parser.RetryBackoff, config.DefaultParserRetryBackoff)
	if err != nil {
		return nil, fmt.Errorf("parse parser retry backoff: %w", err)
	}
	retry := parser.RetryPolicy{MaxRetries: cfg.Parser.MaxRetries, Backoff: retryBackoff}

	mode := strings.ToLower(strings.TrimSpace(cfg.Parser.Mode))
	switch mode {
	case "", ParserModeModel:
		router, err := model.NewModelRouter(cfg.Models)
		if err != nil {
			return nil, fmt.Errorf("init model router: %w", err)
		}
		modelName := cfg.Parser.Model
		if modelName == "" {
			modelName = cfg.Models.Default
		}
		return parser.NewModelParser(router, parser.ModelOptions{
			Model:        modelName,
			SystemPrompt: cfg.Parser.SystemPrompt,
			MaxTokens:    cfg.Parser.MaxTokens,
			Timeout:      timeout,
			Retry:        retry,
		}), nil

	case ParserModeCommand:
		command := cfg.Parser.Command
		if strings.TrimSpace(command) == "" {
			command = config.DefaultParserCommand
		}
		p, err := parser.NewCommandParser(command, parser.CommandOptions{
			Timeout: timeout,
			Retry:   retry,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown parser mode %q (want %s or %s)", cfg.Parser.Mode, ParserModeModel, ParserModeCommand)
	}
}
