package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/harunnryd/kakunin/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server    ServerConfig    `koanf:"server" yaml:"server"`
	Models    ModelsConfig    `koanf:"models" yaml:"models"`
	Parser    ParserConfig    `koanf:"parser" yaml:"parser"`
	Store     StoreConfig     `koanf:"store" yaml:"store"`
	Daemon    DaemonConfig    `koanf:"daemon" yaml:"daemon"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
}

type ServerConfig struct {
	Port            int    `koanf:"port" yaml:"port"`
	LogLevel        string `koanf:"log_level" yaml:"log_level"`
	ReadTimeout     string `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default" yaml:"default"`
	Fallback            string          `koanf:"fallback" yaml:"fallback"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts" yaml:"max_fallback_attempts"`
	Registry            []ModelRegistry `koanf:"registry" yaml:"registry"`
}

type ModelRegistry struct {
	Name           string `koanf:"name" yaml:"name"`
	Provider       string `koanf:"provider" yaml:"provider"`
	BaseURL        string `koanf:"base_url" yaml:"base_url,omitempty"`
	APIKey         string `koanf:"api_key" yaml:"api_key,omitempty"`
	RequestTimeout string `koanf:"request_timeout" yaml:"request_timeout,omitempty"`
}

// ParserConfig selects and tunes the requirement parser collaborator.
type ParserConfig struct {
	// Mode is "model" (LLM through the model router) or "command" (external CLI).
	Mode         string `koanf:"mode" yaml:"mode"`
	Model        string `koanf:"model" yaml:"model"`
	Command      string `koanf:"command" yaml:"command"`
	Timeout      string `koanf:"timeout" yaml:"timeout"`
	MaxRetries   int    `koanf:"max_retries" yaml:"max_retries"`
	RetryBackoff string `koanf:"retry_backoff" yaml:"retry_backoff"`
	MaxTokens    int    `koanf:"max_tokens" yaml:"max_tokens"`
	SystemPrompt string `koanf:"system_prompt" yaml:"system_prompt"`
}

type StoreConfig struct {
	LockTimeout              string `koanf:"lock_timeout" yaml:"lock_timeout"`
	LockRetry                string `koanf:"lock_retry" yaml:"lock_retry"`
	LockMaxRetry             int    `koanf:"lock_max_retry" yaml:"lock_max_retry"`
	InboxSize                int    `koanf:"inbox_size" yaml:"inbox_size"`
	TranscriptRotateMaxBytes int64  `koanf:"transcript_rotate_max_bytes" yaml:"transcript_rotate_max_bytes"`
}

type DaemonConfig struct {
	ShutdownTimeout string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	StaleLockTTL    string `koanf:"stale_lock_ttl" yaml:"stale_lock_ttl"`
	WorkspacePath   string `koanf:"workspace_path" yaml:"workspace_path"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled" yaml:"enabled"`
	ServiceName string `koanf:"service_name" yaml:"service_name"`
}

const (
	DefaultWorkspaceID                   = "default"
	DefaultServerPort                    = 8080
	DefaultServerLogLevel                = "info"
	DefaultServerReadTimeout             = "10s"
	DefaultServerWriteTimeout            = "120s"
	DefaultServerIdleTimeout             = "60s"
	DefaultServerShutdownTimeout         = "5s"
	DefaultModelDefault                  = "gpt-4o-mini"
	DefaultModelFallback                 = "claude-3-5-haiku-latest"
	DefaultModelMaxFallbackAttempts      = 2
	DefaultOpenAIBaseURL                 = "https://api.openai.com/v1"
	DefaultOllamaBaseURL                 = "http://localhost:11434/v1"
	DefaultOllamaAPIKey                  = "ollama"
	DefaultParserMode                    = "model"
	DefaultParserCommand                 = "claude --print"
	DefaultParserTimeout                 = "90s"
	DefaultParserMaxRetries              = 2
	DefaultParserRetryBackoff            = "1s"
	DefaultParserMaxTokens               = 2048
	DefaultParserSystemPrompt            = "You are a requirements analyst. Extract a structured requirement from the user's description and reply with JSON only."
	DefaultStoreLockTimeout              = "30s"
	DefaultStoreLockRetry                = "100ms"
	DefaultStoreLockMaxRetry             = 300
	DefaultStoreInboxSize                = 100
	DefaultStoreTranscriptRotateMaxBytes = 10 * 1024 * 1024
	DefaultDaemonShutdownTimeout         = "30s"
	DefaultDaemonStaleLockTTL            = "15m"
	DefaultTelemetryEnabled              = false
	DefaultTelemetryServiceName          = "kakunin"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":                  DefaultServerPort,
		"server.log_level":             DefaultServerLogLevel,
		"server.read_timeout":          DefaultServerReadTimeout,
		"server.write_timeout":         DefaultServerWriteTimeout,
		"server.idle_timeout":          DefaultServerIdleTimeout,
		"server.shutdown_timeout":      DefaultServerShutdownTimeout,
		"models.default":               DefaultModelDefault,
		"models.fallback":              DefaultModelFallback,
		"models.max_fallback_attempts": DefaultModelMaxFallbackAttempts,
		"models.registry": []ModelRegistry{
			{Name: DefaultModelDefault, Provider: "openai"},
			{Name: DefaultModelFallback, Provider: "anthropic"},
			{Name: "local-llama", Provider: "ollama", BaseURL: DefaultOllamaBaseURL},
		},
		"parser.mode":                       DefaultParserMode,
		"parser.model":                      "",
		"parser.command":                    DefaultParserCommand,
		"parser.timeout":                    DefaultParserTimeout,
		"parser.max_retries":                DefaultParserMaxRetries,
		"parser.retry_backoff":              DefaultParserRetryBackoff,
		"parser.max_tokens":                 DefaultParserMaxTokens,
		"parser.system_prompt":              DefaultParserSystemPrompt,
		"store.lock_timeout":                DefaultStoreLockTimeout,
		"store.lock_retry":                  DefaultStoreLockRetry,
		"store.lock_max_retry":              DefaultStoreLockMaxRetry,
		"store.inbox_size":                  DefaultStoreInboxSize,
		"store.transcript_rotate_max_bytes": DefaultStoreTranscriptRotateMaxBytes,
		"daemon.shutdown_timeout":           DefaultDaemonShutdownTimeout,
		"daemon.stale_lock_ttl":             DefaultDaemonStaleLockTTL,
		"daemon.workspace_path":             defaultWorkspacePath(),
		"telemetry.enabled":                 DefaultTelemetryEnabled,
		"telemetry.service_name":            DefaultTelemetryServiceName,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		globalPath, err := pathutil.AppDir("config.yaml")
		if err == nil {
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("KAKUNIN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KAKUNIN_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "openai"
		}
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	injectAPIKey(&cfg, "openai", os.Getenv("OPENAI_API_KEY"))
	injectAPIKey(&cfg, "anthropic", os.Getenv("ANTHROPIC_API_KEY"))
	injectAPIKey(&cfg, "gemini", os.Getenv("GEMINI_API_KEY"))

	return &cfg, nil
}

func injectAPIKey(cfg *Config, provider, key string) {
	if key == "" {
		return
	}
	for i, m := range cfg.Models.Registry {
		if m.Provider == provider && m.APIKey == "" {
			cfg.Models.Registry[i].APIKey = key
		}
	}
}

// Masked returns a copy of cfg with provider API keys redacted, suitable for display.
func (c Config) Masked() Config {
	out := c
	out.Models.Registry = make([]ModelRegistry, len(c.Models.Registry))
	for i, m := range c.Models.Registry {
		if m.APIKey != "" {
			m.APIKey = "********"
		}
		out.Models.Registry[i] = m
	}
	return out
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	workspacePath, err := expandConfiguredPath(cfg.Daemon.WorkspacePath)
	if err != nil {
		return err
	}
	if workspacePath != "" {
		cfg.Daemon.WorkspacePath = workspacePath
	}

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}

func defaultWorkspacePath() string {
	path, err := pathutil.AppDir("workspaces")
	if err != nil {
		return ""
	}
	return path
}
