// Package config handles runtime configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/iuriikogan/rlm-orchestrator/internal/pricing"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/rlm/config.yaml, /etc/rlm/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rlm", "config.yaml"))
	}

	paths = append(paths, "/etc/rlm/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds the full runtime configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Backend    BackendConfig    `yaml:"backend"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
	SubCalls   SubCallsConfig   `yaml:"sub_calls"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Trajectory TrajectoryConfig `yaml:"trajectory"`
	// Pricing extends or replaces entries in the built-in per-1k-token
	// price table, keyed by base model name.
	Pricing  map[string]PricingConfig `yaml:"pricing"`
	LogLevel string                   `yaml:"log_level"`
}

// PricingConfig is one pricing-table entry, prices per 1000 tokens.
type PricingConfig struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// ApplyPricing installs the configured pricing overrides.
func (c *Config) ApplyPricing() {
	for model, p := range c.Pricing {
		pricing.Override(model, pricing.ModelPricing{InputPrice: p.InputPer1K, OutputPrice: p.OutputPer1K})
	}
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// BackendConfig selects and configures the model backend.
type BackendConfig struct {
	Provider string `yaml:"provider"` // gemini, anthropic
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"` // falls back to GEMINI_API_KEY / ANTHROPIC_API_KEY
}

// DefaultsConfig sets the per-completion budget defaults; zero fields
// keep the built-in defaults.
type DefaultsConfig struct {
	MaxDepth       int      `yaml:"max_depth"`
	MaxSubcalls    int      `yaml:"max_subcalls"`
	TokenBudget    int      `yaml:"token_budget"`
	ToolBudget     int      `yaml:"tool_budget"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	CostBudgetUSD  *float64 `yaml:"cost_budget_usd"`
	ParallelTools  bool     `yaml:"parallel_tools"`
	MaxParallel    int      `yaml:"max_parallel"`
}

// SubCallsConfig governs the delegation tools.
type SubCallsConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MaxPerTurn        int     `yaml:"max_per_turn"`
	BudgetInheritance float64 `yaml:"budget_inheritance"`
	MaxCostPerSession float64 `yaml:"max_cost_per_session"`
}

// SandboxConfig configures the code-execution sandbox tools.
type SandboxConfig struct {
	Enabled           bool   `yaml:"enabled"`
	PythonBin         string `yaml:"python_bin"`
	DefaultTimeoutSec int    `yaml:"default_timeout_sec"`
	MaxOutputBytes    int    `yaml:"max_output_bytes"`
}

// TrajectoryConfig selects where completed event trees are persisted.
type TrajectoryConfig struct {
	SQLitePath string `yaml:"sqlite_path"` // empty disables the store
	JSONLPath  string `yaml:"jsonl_path"`  // empty disables the JSONL log
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Backend: BackendConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
		},
		SubCalls: SubCallsConfig{
			Enabled:           true,
			MaxPerTurn:        5,
			BudgetInheritance: 0.5,
			MaxCostPerSession: 1.0,
		},
		Sandbox: SandboxConfig{
			PythonBin:         "python3",
			DefaultTimeoutSec: 30,
		},
		LogLevel: "info",
	}
}

// CompletionDefaults converts the configured defaults into completion
// options, falling back to the built-in values for zero fields.
func (c *Config) CompletionDefaults() types.CompletionOptions {
	o := types.DefaultOptions()
	d := c.Defaults
	if d.MaxDepth > 0 {
		o.MaxDepth = d.MaxDepth
	}
	if d.MaxSubcalls > 0 {
		o.MaxSubcalls = d.MaxSubcalls
	}
	if d.TokenBudget > 0 {
		o.TokenBudget = d.TokenBudget
	}
	if d.ToolBudget > 0 {
		o.ToolBudget = d.ToolBudget
	}
	if d.TimeoutSeconds > 0 {
		o.TimeoutSeconds = d.TimeoutSeconds
	}
	if d.MaxParallel > 0 {
		o.MaxParallel = d.MaxParallel
	}
	o.ParallelTools = d.ParallelTools
	o.CostBudgetUSD = d.CostBudgetUSD
	return o
}
