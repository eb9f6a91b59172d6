package domain

// Example is a single few-shot user/assistant exchange attached to a skill.
type Example struct {
	User      string `yaml:"user" json:"user"`
	Assistant string `yaml:"assistant" json:"assistant"`
}

// RAGContext configures knowledge-base injection for a skill.
type RAGContext struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Skills  []string `yaml:"skills,omitempty" json:"skills,omitempty"`
	Tags    []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	TopK    int      `yaml:"top_k,omitempty" json:"top_k,omitempty"`
}

// Skill is an agent persona loaded from a YAML file: a system prompt plus
// the tools, model settings and retrieval configuration the agent runs with.
type Skill struct {
	Name          string     `yaml:"name" json:"name"`
	Description   string     `yaml:"description" json:"description"`
	SystemPrompt  string     `yaml:"system_prompt" json:"system_prompt"`
	Tools         []string   `yaml:"tools,omitempty" json:"tools,omitempty"`
	Model         string     `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature   float64    `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxIterations int        `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	Tags          []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	Examples      []Example  `yaml:"examples,omitempty" json:"examples,omitempty"`
	RAGContext    RAGContext `yaml:"rag_context,omitempty" json:"rag_context,omitempty"`
}

// SkillProvider loads and manages skills.
type SkillProvider interface {
	Get(name string) (*Skill, error)
	List() []Skill
}
