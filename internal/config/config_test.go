package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iuriikogan/rlm-orchestrator/internal/pricing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen:
  port: 9090
backend:
  provider: anthropic
  model: claude-3-5-sonnet
defaults:
  max_depth: 3
  token_budget: 16000
  parallel_tools: true
sub_calls:
  enabled: true
  max_per_turn: 2
trajectory:
  sqlite_path: /tmp/trajectories.db
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Listen.Port)
	}
	if cfg.Backend.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", cfg.Backend.Provider)
	}
	if cfg.SubCalls.MaxPerTurn != 2 {
		t.Errorf("MaxPerTurn = %d, want 2", cfg.SubCalls.MaxPerTurn)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}

	opts := cfg.CompletionDefaults()
	if opts.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", opts.MaxDepth)
	}
	if opts.TokenBudget != 16000 {
		t.Errorf("TokenBudget = %d, want 16000", opts.TokenBudget)
	}
	if !opts.ParallelTools {
		t.Error("ParallelTools = false, want true")
	}
	// Unset fields keep built-in defaults.
	if opts.ToolBudget != 20 {
		t.Errorf("ToolBudget = %d, want default 20", opts.ToolBudget)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_RLM_KEY", "secret-from-env")
	path := writeConfig(t, `
backend:
  api_key: ${TEST_RLM_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.APIKey != "secret-from-env" {
		t.Errorf("APIKey = %q, want env value", cfg.Backend.APIKey)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestFindConfigExplicit(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	found, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig() error = %v", err)
	}
	if found != path {
		t.Errorf("found = %q, want %q", found, path)
	}
}

func TestApplyPricing(t *testing.T) {
	path := writeConfig(t, `
pricing:
  my-fine-tune:
    input_per_1k: 0.002
    output_per_1k: 0.008
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.ApplyPricing()

	p := pricing.Get("my-fine-tune")
	if p == nil {
		t.Fatal("Get(my-fine-tune) = nil after ApplyPricing")
	}
	if p.InputPrice != 0.002 || p.OutputPrice != 0.008 {
		t.Errorf("pricing = %+v, want 0.002/0.008", p)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.Backend.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", cfg.Backend.Provider)
	}
	if !cfg.SubCalls.Enabled {
		t.Error("SubCalls should default to enabled")
	}
}
