package parser

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/kakunin/internal/config"
	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"
	"github.com/harunnryd/kakunin/internal/logger"
	"github.com/harunnryd/kakunin/internal/model"
	"github.com/harunnryd/kakunin/internal/model/contract"
	"github.com/harunnryd/kakunin/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

type ModelOptions struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Timeout      time.Duration
	Retry        RetryPolicy
}

// ModelParser asks an LLM, through the model router, to structure the requirement.
type ModelParser struct {
	router model.ModelRouter
	opts   ModelOptions
}

func NewModelParser(router model.ModelRouter, opts ModelOptions) *ModelParser {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = config.DefaultParserSystemPrompt
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = config.DefaultParserMaxTokens
	}
	return &ModelParser{router: router, opts: opts}
}

func (p *ModelParser) Parse(ctx context.Context, raw string) (result *Result, err error) {
	if strings.TrimSpace(raw) == "" {
		return nil, kakuninErrors.InvalidInput("requirement text is empty")
	}

	ctx, span := telemetry.Tracer("").Start(ctx, "parser.model")
	span.SetAttributes(
		attribute.String("parser.model", p.opts.Model),
		attribute.Int("parser.input_chars", len(raw)),
	)
	defer func() { telemetry.End(span, err) }()

	req := contract.CompletionRequest{
		System:    p.opts.SystemPrompt,
		Messages:  []contract.Message{{Role: "user", Content: BuildPrompt(raw)}},
		MaxTokens: p.opts.MaxTokens,
		JSON:      true,
	}

	err = withRetry(ctx, "model", p.opts.Retry, func(ctx context.Context) error {
		callCtx := ctx
		if p.opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
			defer cancel()
		}

		resp, err := p.router.Route(callCtx, p.opts.Model, req)
		if err != nil {
			return err
		}
		decoded, err := DecodeResult(resp.Content)
		if err != nil {
			return err
		}
		result = decoded
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Warn("Requirement parse failed", "parser", "model", "error", err)
		if kakuninErrors.IsCategory(err, kakuninErrors.ErrUpstreamParse) || kakuninErrors.IsCategory(err, kakuninErrors.ErrInvalidInput) {
			return nil, err
		}
		return nil, kakuninErrors.WrapWithCategory(err, "model parser failed", kakuninErrors.ErrUpstreamParse)
	}

	slog.Debug("Requirement parsed", "parser", "model", "project_type", result.ProjectType, "features", len(result.Features))
	return result, nil
}
