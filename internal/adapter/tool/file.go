package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"agentgw/internal/domain"
)

const (
	defaultMaxLines = 500
	maxListEntries  = 200
)

// ReadFileTool reads a text file from the local filesystem.
type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a text file. Long files are truncated to max_lines."
}

func (t *ReadFileTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Path to the file to read"},
				"max_lines": {"type": "integer", "description": "Maximum number of lines to return (default 500)"}
			},
			"required": ["path"]
		}`),
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		Path     string `json:"path"`
		MaxLines int    `json:"max_lines"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if args.MaxLines <= 0 {
		args.MaxLines = defaultMaxLines
	}

	f, err := os.Open(args.Path)
	if err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("Error reading file: %v", err), IsError: true}, nil
	}
	defer f.Close()

	var (
		sb        strings.Builder
		lines     int
		truncated bool
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if lines >= args.MaxLines {
			truncated = true
			break
		}
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
		lines++
	}
	if err := scanner.Err(); err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("Error reading file: %v", err), IsError: true}, nil
	}

	content := sb.String()
	if truncated {
		content += fmt.Sprintf("\n... [truncated at %d lines]", args.MaxLines)
	}
	return &domain.ToolResult{Content: content}, nil
}

// ListFilesTool lists directory entries matching a glob pattern.
type ListFilesTool struct{}

func NewListFilesTool() *ListFilesTool { return &ListFilesTool{} }

func (t *ListFilesTool) Name() string { return "list_files" }

func (t *ListFilesTool) Description() string {
	return "List files in a directory, optionally filtered by a glob pattern."
}

func (t *ListFilesTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"directory": {"type": "string", "description": "Directory to list"},
				"pattern": {"type": "string", "description": "Glob pattern, e.g. *.md (default: all entries)"}
			},
			"required": ["directory"]
		}`),
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		Directory string `json:"directory"`
		Pattern   string `json:"pattern"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if args.Pattern == "" {
		args.Pattern = "*"
	}

	entries, err := os.ReadDir(args.Directory)
	if err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("Error listing directory: %v", err), IsError: true}, nil
	}

	var names []string
	for _, e := range entries {
		ok, err := filepath.Match(args.Pattern, e.Name())
		if err != nil {
			return &domain.ToolResult{Content: fmt.Sprintf("invalid pattern: %v", err), IsError: true}, nil
		}
		if !ok {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
		if len(names) >= maxListEntries {
			names = append(names, fmt.Sprintf("... [truncated at %d entries]", maxListEntries))
			break
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return &domain.ToolResult{Content: "no matching files"}, nil
	}
	return &domain.ToolResult{Content: strings.Join(names, "\n")}, nil
}
