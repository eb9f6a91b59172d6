package skill

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"agentgw/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const researcherYAML = `
name: researcher
description: Finds information
system_prompt: You are a research assistant.
tools:
  - search_documents
  - read_file
tags: [research]
examples:
  - user: what is Go?
    assistant: Go is a programming language.
rag_context:
  enabled: true
  tags: [golang]
`

func TestLoadSkillDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "researcher.yaml", researcherYAML)
	writeSkill(t, dir, "coder.yml", "name: coder\nsystem_prompt: You write code.\n")
	writeSkill(t, dir, "_template.yaml", "name: template\nsystem_prompt: skipped\n")
	writeSkill(t, dir, "notes.txt", "not a skill")

	l := NewLoader(dir, testLogger())
	skills, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(skills) != 2 {
		t.Fatalf("loaded %d skills, want 2", len(skills))
	}
	// Sorted by name.
	if skills[0].Name != "coder" || skills[1].Name != "researcher" {
		t.Errorf("order = %s, %s", skills[0].Name, skills[1].Name)
	}

	r, err := l.Get("researcher")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(r.Tools) != 2 || r.Tools[0] != "search_documents" {
		t.Errorf("tools = %v", r.Tools)
	}
	if len(r.Examples) != 1 || r.Examples[0].Assistant != "Go is a programming language." {
		t.Errorf("examples = %+v", r.Examples)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "minimal.yaml", "name: minimal\nsystem_prompt: hi\nrag_context:\n  enabled: true\n")

	l := NewLoader(dir, testLogger())
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s, err := l.Get("minimal")
	if err != nil {
		t.Fatal(err)
	}
	if s.Temperature != 0.7 {
		t.Errorf("temperature = %v, want default 0.7", s.Temperature)
	}
	if s.MaxIterations != 10 {
		t.Errorf("max_iterations = %d, want default 10", s.MaxIterations)
	}
	if s.RAGContext.TopK != 3 {
		t.Errorf("rag top_k = %d, want default 3", s.RAGContext.TopK)
	}
	// Retrieval scope defaults to the skill itself.
	if len(s.RAGContext.Skills) != 1 || s.RAGContext.Skills[0] != "minimal" {
		t.Errorf("rag skills = %v", s.RAGContext.Skills)
	}
}

func TestLoadSkipsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "good.yaml", "name: good\nsystem_prompt: hi\n")
	writeSkill(t, dir, "bad.yaml", "name: bad\n# missing system_prompt\n")
	writeSkill(t, dir, "broken.yaml", "{{{not yaml")

	l := NewLoader(dir, testLogger())
	skills, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(skills) != 1 || skills[0].Name != "good" {
		t.Errorf("skills = %+v", skills)
	}
}

func TestLoadDuplicateNameFails(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "a.yaml", "name: twin\nsystem_prompt: one\n")
	writeSkill(t, dir, "b.yaml", "name: twin\nsystem_prompt: two\n")

	l := NewLoader(dir, testLogger())
	if _, err := l.Load(); err == nil {
		t.Error("expected duplicate name error")
	}
}

func TestGetUnknownSkill(t *testing.T) {
	l := NewLoader(t.TempDir(), testLogger())
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}
	_, err := l.Get("ghost")
	if !errors.Is(err, domain.ErrSkillNotFound) {
		t.Errorf("err = %v, want ErrSkillNotFound", err)
	}
}
