// Package config loads, validates, and normalizes engine configuration.
// Files are YAML or JSON5 with $include composition and environment
// variable expansion; the merged result is checked against a schema
// generated from the Config struct itself, so struct and schema cannot
// drift.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the engine configuration.
type Config struct {
	Module      string                    `yaml:"module" json:"module"`
	Provider    string                    `yaml:"provider" json:"provider"`
	Model       string                    `yaml:"model" json:"model,omitempty"`
	Cwd         string                    `yaml:"cwd" json:"cwd,omitempty"`
	SessionsDir string                    `yaml:"sessionsDir" json:"sessionsDir"`
	TracesDir   string                    `yaml:"tracesDir" json:"tracesDir"`
	Providers   map[string]ProviderConfig `yaml:"providers" json:"providers,omitempty"`
	Policy      PolicyConfig              `yaml:"policy" json:"policy"`
	Tools       ToolsConfig               `yaml:"tools" json:"tools"`
	Logging     LoggingConfig             `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig             `yaml:"metrics" json:"metrics"`
	Tracing     TracingConfig             `yaml:"tracing" json:"tracing"`
	RateLimit   RateLimitConfig           `yaml:"rateLimit" json:"rateLimit"`
}

// ProviderConfig holds per-provider credentials and overrides. The API
// key never serializes to JSON so flattened config facts cannot leak it.
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey" json:"-"`
	Model   string `yaml:"model" json:"model,omitempty"`
	BaseURL string `yaml:"baseURL" json:"baseURL,omitempty"`
}

// PolicyConfig carries the user-tunable execution limits.
type PolicyConfig struct {
	MaxDepth           int                            `yaml:"maxDepth" json:"maxDepth"`
	MaxFanout          int                            `yaml:"maxFanout" json:"maxFanout"`
	MaxSequentialSteps int                            `yaml:"maxSequentialSteps" json:"maxSequentialSteps"`
	MaxTaskCycles      int                            `yaml:"maxTaskCycles" json:"maxTaskCycles"`
	AllowedTools       []string                       `yaml:"allowedTools" json:"allowedTools,omitempty"`
	DeniedTools        []string                       `yaml:"deniedTools" json:"deniedTools,omitempty"`
	AutoApproveTools   bool                           `yaml:"autoApproveTools" json:"autoApproveTools"`
	ApprovalTimeoutMs  int64                          `yaml:"approvalTimeoutMs" json:"approvalTimeoutMs"`
	DimensionGates     map[string]DimensionGateConfig `yaml:"dimensionGates" json:"dimensionGates,omitempty"`
}

// DimensionGateConfig filters classifier output for one dimension.
type DimensionGateConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	MinConfidence float64 `yaml:"minConfidence" json:"minConfidence"`
}

// ToolsConfig configures MCP tool discovery.
type ToolsConfig struct {
	Enabled            bool                       `yaml:"enabled" json:"enabled"`
	MCPServers         map[string]MCPServerConfig `yaml:"mcpServers" json:"mcpServers,omitempty"`
	AllowedDirectories []string                   `yaml:"allowedDirectories" json:"allowedDirectories,omitempty"`
}

// MCPServerConfig describes one MCP server. Command starts a stdio
// server; URL points at a streamable HTTP one. Exactly one must be set.
// Headers ride on HTTP requests only; env and headers stay out of JSON
// dumps since they commonly carry credentials.
type MCPServerConfig struct {
	Command string            `yaml:"command" json:"command,omitempty"`
	Args    []string          `yaml:"args" json:"args,omitempty"`
	Env     map[string]string `yaml:"env" json:"-"`
	URL     string            `yaml:"url" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers" json:"-"`
}

// LoggingConfig mirrors the observability logger options.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	Format    string `yaml:"format" json:"format"`
	Output    string `yaml:"output" json:"output,omitempty"`
	AddSource bool   `yaml:"addSource" json:"addSource"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr,omitempty"`
}

// TracingConfig enables OTLP span export alongside the local trace files.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint,omitempty"`
	ServiceName string  `yaml:"serviceName" json:"serviceName,omitempty"`
	SampleRatio float64 `yaml:"sampleRatio" json:"sampleRatio"`
}

// RateLimitConfig bounds provider API call rates.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requestsPerMinute" json:"requestsPerMinute"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// Load reads, merges, validates, and normalizes a configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	return FromRaw(raw)
}

// FromRaw validates a merged raw map and decodes it into a Config with
// defaults applied.
func FromRaw(raw map[string]any) (*Config, error) {
	if err := validateRaw(raw); err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Module == "" {
		cfg.Module = "thinksuit/mu"
	}
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.Cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Cwd = wd
		}
	}
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = filepath.Join(homeDir(), ".thinksuit", "sessions")
	}
	if cfg.TracesDir == "" {
		cfg.TracesDir = filepath.Join(homeDir(), ".thinksuit", "traces")
	}
	cfg.SessionsDir = ExpandPath(cfg.SessionsDir)
	cfg.TracesDir = ExpandPath(cfg.TracesDir)
	if cfg.Model == "" {
		if pc, ok := cfg.Providers[cfg.Provider]; ok && pc.Model != "" {
			cfg.Model = pc.Model
		} else {
			cfg.Model = defaultModel(cfg.Provider)
		}
	}
	if cfg.Policy.MaxDepth == 0 {
		cfg.Policy.MaxDepth = 5
	}
	if cfg.Policy.MaxFanout == 0 {
		cfg.Policy.MaxFanout = 3
	}
	if cfg.Policy.MaxSequentialSteps == 0 {
		cfg.Policy.MaxSequentialSteps = 5
	}
	if cfg.Policy.MaxTaskCycles == 0 {
		cfg.Policy.MaxTaskCycles = 8
	}
	if cfg.Policy.ApprovalTimeoutMs == 0 {
		cfg.Policy.ApprovalTimeoutMs = 120000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "localhost:9464"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "thinksuit"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1.0
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 60
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 5
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-20250514"
	case "openai":
		return "gpt-4o"
	case "google":
		return "gemini-2.0-flash"
	default:
		return ""
	}
}

// Validate performs the semantic checks the schema cannot express.
func (c *Config) Validate() error {
	switch c.Provider {
	case "anthropic", "openai", "google":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("no model configured for provider %q", c.Provider)
	}
	for name, srv := range c.Tools.MCPServers {
		if srv.Command == "" && srv.URL == "" {
			return fmt.Errorf("mcp server %q: either command or url is required", name)
		}
		if srv.Command != "" && srv.URL != "" {
			return fmt.Errorf("mcp server %q: command and url are mutually exclusive", name)
		}
	}
	for dim, gate := range c.Policy.DimensionGates {
		if gate.MinConfidence < 0 || gate.MinConfidence > 1 {
			return fmt.Errorf("dimension gate %q: minConfidence %v outside [0,1]", dim, gate.MinConfidence)
		}
	}
	return nil
}

// APIKey resolves the credential for the active provider, falling back
// to the conventional environment variables.
func (c *Config) APIKey() string {
	if pc, ok := c.Providers[c.Provider]; ok && pc.APIKey != "" {
		return pc.APIKey
	}
	switch c.Provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "google":
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

// BaseURL returns the endpoint override for the active provider, if any.
func (c *Config) BaseURL() string {
	if pc, ok := c.Providers[c.Provider]; ok {
		return pc.BaseURL
	}
	return ""
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// ExpandPath resolves a leading ~ against the home directory.
func ExpandPath(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
