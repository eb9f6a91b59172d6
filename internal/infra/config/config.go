package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Storage   StorageConfig   `yaml:"storage"`
	Skills    SkillsConfig    `yaml:"skills"`
	RAG       RAGConfig       `yaml:"rag"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	Provider       string               `yaml:"provider"` // "openai", "anthropic", "xai"
	Model          string               `yaml:"model"`
	Temperature    float64              `yaml:"temperature"`
	MaxTokens      int                  `yaml:"max_tokens"`
	Providers      []ProviderConfig     `yaml:"providers"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// AgentConfig holds agent loop settings.
type AgentConfig struct {
	MaxIterations         int `yaml:"max_iterations"`
	MaxOrchestrationDepth int `yaml:"max_orchestration_depth"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	LogDir     string `yaml:"log_dir"`
}

// SkillsConfig holds skill system settings.
type SkillsConfig struct {
	Dir string `yaml:"dir"`
}

// RAGConfig holds vector store settings.
type RAGConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	Collection string `yaml:"collection"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	APIKey          string `yaml:"api_key"` // empty = auth disabled
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	RateLimitBurst  int    `yaml:"rate_limit_burst"`
}

// SchedulerConfig holds cron scheduler settings.
type SchedulerConfig struct {
	Enabled bool        `yaml:"enabled"`
	Jobs    []JobConfig `yaml:"jobs"`
}

// JobConfig defines a single scheduled job.
type JobConfig struct {
	Name      string `yaml:"name"`
	Skill     string `yaml:"skill"`
	Message   string `yaml:"message"`
	Schedule  string `yaml:"schedule"` // cron expression or duration string
	Enabled   bool   `yaml:"enabled"`
	LogOutput bool   `yaml:"log_output"`
}

// WebhooksConfig holds webhook delivery settings.
type WebhooksConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	URL     string   `yaml:"url"`
	Events  []string `yaml:"events"` // empty = all events
	Secret  string   `yaml:"secret"`
	Retries int      `yaml:"retries"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json", "text", "pretty"
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Agent: AgentConfig{
			MaxIterations:         10,
			MaxOrchestrationDepth: 3,
		},
		Storage: StorageConfig{
			SQLitePath: "data/agentgw.db",
			LogDir:     "data/logs",
		},
		Skills: SkillsConfig{Dir: "skills"},
		RAG: RAGConfig{
			BaseURL:    "http://localhost:8000",
			Collection: "agentgw",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimitPerMin: 100,
			RateLimitBurst:  20,
		},
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Load reads the YAML config file at path, applies defaults for missing
// values, then applies AGENTGW_* environment overrides. A missing file is
// not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.MaxOrchestrationDepth <= 0 {
		cfg.Agent.MaxOrchestrationDepth = 3
	}

	return cfg, nil
}

// applyEnv overrides config fields from AGENTGW_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("AGENTGW_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("AGENTGW_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("AGENTGW_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("AGENTGW_SKILLS_DIR"); v != "" {
		cfg.Skills.Dir = v
	}
	if v := os.Getenv("AGENTGW_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AGENTGW_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("AGENTGW_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENTGW_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("AGENTGW_MAX_ORCHESTRATION_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxOrchestrationDepth = n
		}
	}

	// Provider API keys fall back to conventional vendor variables.
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if p.APIKey != "" {
			continue
		}
		switch p.Type {
		case "openai":
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "xai":
			p.APIKey = os.Getenv("XAI_API_KEY")
		}
	}
}
