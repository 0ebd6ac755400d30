package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "thinksuit.yaml", "provider: anthropic\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Module != "thinksuit/mu" {
		t.Errorf("module = %q, want default thinksuit/mu", cfg.Module)
	}
	if cfg.Model == "" {
		t.Error("model default not applied")
	}
	if cfg.Policy.MaxDepth != 5 || cfg.Policy.MaxFanout != 3 {
		t.Errorf("policy defaults = %+v", cfg.Policy)
	}
	if cfg.Policy.ApprovalTimeoutMs != 120000 {
		t.Errorf("approvalTimeoutMs = %d, want 120000", cfg.Policy.ApprovalTimeoutMs)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownTopLevelKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "thinksuit.yaml", "provider: anthropic\nmispelled: true\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !models.IsKind(err, models.ErrValidation) {
		t.Errorf("kind = %v, want E_VALIDATION", models.KindOf(err))
	}
	if !strings.Contains(err.Error(), "mispelled") {
		t.Errorf("error %q should name the unknown key", err)
	}
}

func TestLoadIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
provider: openai
policy:
  maxDepth: 2
  maxFanout: 2
`)
	path := writeConfig(t, dir, "thinksuit.yaml", `
$include: base.yaml
policy:
  maxDepth: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("provider = %q, want openai from include", cfg.Provider)
	}
	// Outer file wins on conflict; untouched nested keys survive the merge.
	if cfg.Policy.MaxDepth != 4 {
		t.Errorf("maxDepth = %d, want outer override 4", cfg.Policy.MaxDepth)
	}
	if cfg.Policy.MaxFanout != 2 {
		t.Errorf("maxFanout = %d, want included 2", cfg.Policy.MaxFanout)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "$include: b.yaml\n")
	writeConfig(t, dir, "b.yaml", "$include: a.yaml\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("err = %v, want include cycle error", err)
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("TS_TEST_MODEL", "claude-sonnet-4-20250514")
	dir := t.TempDir()
	path := writeConfig(t, dir, "thinksuit.yaml", "model: ${TS_TEST_MODEL}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q, env not expanded", cfg.Model)
	}
}

func TestLoadEnvExpansionPreservesInclude(t *testing.T) {
	t.Setenv("TS_TEST_PROVIDER", "anthropic")
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", "policy:\n  maxDepth: 3\n")
	path := writeConfig(t, dir, "thinksuit.yaml", `
$include: base.yaml
provider: ${TS_TEST_PROVIDER}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("provider = %q, env not expanded", cfg.Provider)
	}
	if cfg.Policy.MaxDepth != 3 {
		t.Errorf("maxDepth = %d, want included 3", cfg.Policy.MaxDepth)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "thinksuit.json5", `{
	  // comments are allowed here
	  provider: "google",
	  policy: { maxTaskCycles: 3 },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "google" {
		t.Errorf("provider = %q, want google", cfg.Provider)
	}
	if cfg.Policy.MaxTaskCycles != 3 {
		t.Errorf("maxTaskCycles = %d, want 3", cfg.Policy.MaxTaskCycles)
	}
}

func TestValidateMCPServers(t *testing.T) {
	cfg := Default()
	cfg.Tools.MCPServers = map[string]MCPServerConfig{
		"fs": {},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("server with neither command nor url should fail")
	}

	cfg.Tools.MCPServers = map[string]MCPServerConfig{
		"fs": {Command: "mcp-fs", URL: "http://localhost:3000"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("server with both command and url should fail")
	}

	cfg.Tools.MCPServers = map[string]MCPServerConfig{
		"fs":  {Command: "mcp-fs", Args: []string{"--root", "."}},
		"web": {URL: "http://localhost:3000/mcp"},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid servers rejected: %v", err)
	}
}

func TestFlattenSkipsSecretsAndUnderscores(t *testing.T) {
	cfg := Default()
	cfg.Providers = map[string]ProviderConfig{
		"anthropic": {APIKey: "sk-ant-secret", Model: "claude-sonnet-4-20250514"},
	}
	flat := cfg.Flatten()

	if _, ok := flat["policy.maxDepth"]; !ok {
		t.Error("policy.maxDepth missing from flattened config")
	}
	for path, v := range flat {
		if strings.Contains(path, "apiKey") {
			t.Errorf("credential path %q leaked into flattened config", path)
		}
		if s, ok := v.(string); ok && strings.Contains(s, "sk-ant-") {
			t.Errorf("credential value leaked at %q", path)
		}
	}
}

func TestJSONSchemaGeneration(t *testing.T) {
	doc, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}
	for _, want := range []string{"maxDepth", "mcpServers", "sessionsDir"} {
		if !strings.Contains(string(doc), want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
