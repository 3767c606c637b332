package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func TestConfigInitCmd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := configInitCmd.RunE(cmd, []string{}); err != nil {
		t.Fatalf("Config init failed: %v", err)
	}

	configPath := filepath.Join(tmpDir, ".kakunin", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Config file not created at %s: %v", configPath, err)
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
	for _, section := range []string{"server", "models", "parser", "store", "daemon", "telemetry"} {
		if _, ok := parsed[section]; !ok {
			t.Errorf("Generated config is missing section %q", section)
		}
	}

	out.Reset()
	if err := configInitCmd.RunE(cmd, []string{}); err != nil {
		t.Errorf("Config init should succeed when config exists: %v", err)
	}
	if !strings.Contains(out.String(), "Config already exists") {
		t.Errorf("Expected existing-config notice, got %q", out.String())
	}
}

func TestConfigViewCmd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KAKUNIN_SERVER_PORT", "9191")

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := configViewCmd.RunE(cmd, []string{}); err != nil {
		t.Fatalf("Config view failed: %v", err)
	}

	var parsed struct {
		Server struct {
			Port int `yaml:"port"`
		} `yaml:"server"`
		Parser struct {
			Mode string `yaml:"mode"`
		} `yaml:"parser"`
	}
	if err := yaml.Unmarshal(out.Bytes(), &parsed); err != nil {
		t.Fatalf("Config view output is not YAML: %v", err)
	}
	if parsed.Server.Port != 9191 {
		t.Errorf("Expected env override port 9191, got %d", parsed.Server.Port)
	}
	if parsed.Parser.Mode != "model" {
		t.Errorf("Expected default parser mode, got %q", parsed.Parser.Mode)
	}
}

func TestConfigViewCmd_MasksSecrets(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `models:
  registry:
    - name: gpt-4o-mini
      provider: openai
      api_key: sk-secret-123456
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file")
	_ = cmd.Flags().Set("config", configPath)
	cmd.SetOut(&out)

	if err := configViewCmd.RunE(cmd, []string{}); err != nil {
		t.Fatalf("Config view failed: %v", err)
	}
	if strings.Contains(out.String(), "sk-secret-123456") {
		t.Errorf("Config view leaked an API key:\n%s", out.String())
	}
}
