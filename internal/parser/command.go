package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"
	"github.com/harunnryd/kakunin/internal/logger"
	"github.com/harunnryd/kakunin/internal/telemetry"

	"github.com/google/shlex"
	"go.opentelemetry.io/otel/attribute"
)

type CommandOptions struct {
	// Dir is the working directory of the command; empty means the current one.
	Dir     string
	Env     []string
	Timeout time.Duration
	Retry   RetryPolicy
}

// CommandParser runs an external CLI (for example `claude --print`) with the
// parse prompt appended as the final argument and decodes its stdout.
type CommandParser struct {
	argv []string
	opts CommandOptions
}

func NewCommandParser(command string, opts CommandOptions) (*CommandParser, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, kakuninErrors.InvalidInput(fmt.Sprintf("invalid parser command %q: %v", command, err))
	}
	if len(argv) == 0 {
		return nil, kakuninErrors.InvalidInput("parser command is empty")
	}
	return &CommandParser{argv: argv, opts: opts}, nil
}

func (p *CommandParser) Parse(ctx context.Context, raw string) (result *Result, err error) {
	if strings.TrimSpace(raw) == "" {
		return nil, kakuninErrors.InvalidInput("requirement text is empty")
	}

	ctx, span := telemetry.Tracer("").Start(ctx, "parser.command")
	span.SetAttributes(attribute.String("parser.command", p.argv[0]))
	defer func() { telemetry.End(span, err) }()

	prompt := BuildPrompt(raw)
	err = withRetry(ctx, "command", p.opts.Retry, func(ctx context.Context) error {
		out, err := p.run(ctx, prompt)
		if err != nil {
			return err
		}
		decoded, err := DecodeResult(out)
		if err != nil {
			return err
		}
		result = decoded
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Warn("Requirement parse failed", "parser", "command", "error", err)
		if kakuninErrors.IsCategory(err, kakuninErrors.ErrUpstreamParse) {
			return nil, err
		}
		return nil, kakuninErrors.WrapWithCategory(err, "command parser failed", kakuninErrors.ErrUpstreamParse)
	}
	return result, nil
}

func (p *CommandParser) run(ctx context.Context, prompt string) (string, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, p.argv[1:]...), prompt)
	cmd := exec.CommandContext(ctx, p.argv[0], args...)
	cmd.Dir = p.opts.Dir
	cmd.WaitDelay = time.Second
	if len(p.opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", kakuninErrors.Transient(fmt.Sprintf("parser command timed out after %s", p.opts.Timeout))
	}
	if errors.Is(err, exec.ErrNotFound) {
		return "", kakuninErrors.UpstreamParse(fmt.Sprintf("parser command %q not found", p.argv[0]))
	}

	detail := strings.TrimSpace(stderr.String())
	if detail == "" {
		detail = err.Error()
	}
	return "", kakuninErrors.UpstreamParse(detail)
}
