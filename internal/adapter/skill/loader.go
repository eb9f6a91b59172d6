package skill

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"agentgw/internal/domain"
)

// maxSkillFileSize is the maximum allowed skill file size (1 MiB).
const maxSkillFileSize = 1 << 20

// Loader reads skill definitions from YAML files in a directory.
type Loader struct {
	dir    string
	logger *slog.Logger
	mu     sync.RWMutex
	skills map[string]domain.Skill
}

// Compile-time interface assertion.
var _ domain.SkillProvider = (*Loader)(nil)

// NewLoader creates a skill loader that reads from the given directory.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	return &Loader{
		dir:    dir,
		logger: logger,
		skills: make(map[string]domain.Skill),
	}
}

// Load reads every *.yaml / *.yml file in the skill directory. Files whose
// names start with "_" are skipped. A file that fails to parse is logged
// and skipped so one bad skill cannot take the gateway down; duplicate
// skill names are an error.
func (l *Loader) Load() ([]domain.Skill, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read skill dir %s: %w", l.dir, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.skills = make(map[string]domain.Skill)

	var skills []domain.Skill
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") {
			continue
		}
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(l.dir, name)
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat skill file %s: %w", path, err)
		}
		if info.Size() > maxSkillFileSize {
			return nil, fmt.Errorf("skill file %s too large (%d bytes, max %d)", path, info.Size(), maxSkillFileSize)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read skill file %s: %w", path, err)
		}

		skill, err := parseSkill(data)
		if err != nil {
			l.logger.Warn("skipping invalid skill file", "path", path, "error", err)
			continue
		}

		if _, exists := l.skills[skill.Name]; exists {
			return nil, fmt.Errorf("duplicate skill name %q in %s", skill.Name, path)
		}
		l.skills[skill.Name] = skill
		skills = append(skills, skill)
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

// Get returns a skill by name.
func (l *Loader) Get(name string) (*domain.Skill, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.skills[name]
	if !ok {
		return nil, domain.NewDomainError("Loader.Get", domain.ErrSkillNotFound, name)
	}
	return &s, nil
}

// List returns all loaded skills sorted by name.
func (l *Loader) List() []domain.Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Skill, 0, len(l.skills))
	for _, s := range l.skills {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// parseSkill decodes and normalizes a skill definition.
func parseSkill(data []byte) (domain.Skill, error) {
	var skill domain.Skill
	if err := yaml.Unmarshal(data, &skill); err != nil {
		return domain.Skill{}, fmt.Errorf("parse yaml: %w", err)
	}

	if skill.Name == "" {
		return domain.Skill{}, fmt.Errorf("skill missing name")
	}
	if skill.SystemPrompt == "" {
		return domain.Skill{}, fmt.Errorf("skill %q missing system_prompt", skill.Name)
	}

	if skill.Temperature == 0 {
		skill.Temperature = 0.7
	}
	if skill.MaxIterations <= 0 {
		skill.MaxIterations = 10
	}
	if skill.RAGContext.Enabled {
		if skill.RAGContext.TopK <= 0 {
			skill.RAGContext.TopK = 3
		}
		// A skill's knowledge scope defaults to itself.
		if len(skill.RAGContext.Skills) == 0 {
			skill.RAGContext.Skills = []string{skill.Name}
		}
	}

	return skill, nil
}
