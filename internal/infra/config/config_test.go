package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm defaults = %+v", cfg.LLM)
	}
	if cfg.Agent.MaxIterations != 10 || cfg.Agent.MaxOrchestrationDepth != 3 {
		t.Errorf("agent defaults = %+v", cfg.Agent)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
agent:
  max_iterations: 5
skills:
  dir: /etc/agentgw/skills
scheduler:
  enabled: true
  jobs:
    - name: daily-digest
      skill: researcher
      message: summarize today
      schedule: "0 8 * * *"
      enabled: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("max_iterations = %d", cfg.Agent.MaxIterations)
	}
	if cfg.Skills.Dir != "/etc/agentgw/skills" {
		t.Errorf("skills dir = %q", cfg.Skills.Dir)
	}
	if len(cfg.Scheduler.Jobs) != 1 || cfg.Scheduler.Jobs[0].Name != "daily-digest" {
		t.Errorf("jobs = %+v", cfg.Scheduler.Jobs)
	}
	// Unset fields keep their defaults.
	if cfg.Server.RateLimitPerMin != 100 {
		t.Errorf("rate limit = %d", cfg.Server.RateLimitPerMin)
	}
}

func TestLoadInvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm: [not: valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTGW_LLM_PROVIDER", "xai")
	t.Setenv("AGENTGW_SERVER_ADDR", ":9999")
	t.Setenv("AGENTGW_MAX_ORCHESTRATION_DEPTH", "5")
	t.Setenv("AGENTGW_MAX_ITERATIONS", "not a number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "xai" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Agent.MaxOrchestrationDepth != 5 {
		t.Errorf("depth = %d", cfg.Agent.MaxOrchestrationDepth)
	}
	// Unparseable numeric override keeps the default.
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("max_iterations = %d", cfg.Agent.MaxIterations)
	}
}

func TestProviderAPIKeyFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  providers:
    - name: anthropic
      type: anthropic
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Providers[0].APIKey != "sk-ant-test" {
		t.Errorf("api key = %q, want vendor env fallback", cfg.LLM.Providers[0].APIKey)
	}
}
