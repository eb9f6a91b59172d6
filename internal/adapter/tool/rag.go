package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agentgw/internal/domain"
)

// Ingester is the write side of the knowledge base, implemented by the
// Chroma client.
type Ingester interface {
	Ingest(ctx context.Context, text, source string, skills, tags []string) (int, error)
}

// SearchDocumentsTool queries the knowledge base.
type SearchDocumentsTool struct {
	searcher domain.RAGSearcher
}

func NewSearchDocumentsTool(searcher domain.RAGSearcher) *SearchDocumentsTool {
	return &SearchDocumentsTool{searcher: searcher}
}

func (t *SearchDocumentsTool) Name() string { return "search_documents" }

func (t *SearchDocumentsTool) Description() string {
	return "Search the knowledge base for documents relevant to a query."
}

func (t *SearchDocumentsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query"},
				"top_k": {"type": "integer", "description": "Number of results (default 3)"},
				"tags": {"type": "array", "items": {"type": "string"}, "description": "Restrict results to these tags"}
			},
			"required": ["query"]
		}`),
	}
}

func (t *SearchDocumentsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		Query string   `json:"query"`
		TopK  int      `json:"top_k"`
		Tags  []string `json:"tags"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}

	results, err := t.searcher.Search(ctx, args.Query, args.TopK, nil, args.Tags)
	if err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("Error searching documents: %v", err), IsError: true}, nil
	}
	if len(results) == 0 {
		return &domain.ToolResult{Content: "no matching documents"}, nil
	}

	var sb strings.Builder
	for i, res := range results {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		if res.Source != "" {
			fmt.Fprintf(&sb, "[%s]\n", res.Source)
		}
		sb.WriteString(res.Text)
	}
	return &domain.ToolResult{Content: sb.String()}, nil
}

// IngestDocumentTool adds a document to the knowledge base.
type IngestDocumentTool struct {
	ingester Ingester
}

func NewIngestDocumentTool(ingester Ingester) *IngestDocumentTool {
	return &IngestDocumentTool{ingester: ingester}
}

func (t *IngestDocumentTool) Name() string { return "ingest_document" }

func (t *IngestDocumentTool) Description() string {
	return "Add a document to the knowledge base so future searches can find it."
}

func (t *IngestDocumentTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "description": "Document text"},
				"source": {"type": "string", "description": "Source label for the document"},
				"tags": {"type": "array", "items": {"type": "string"}, "description": "Tags for the document"}
			},
			"required": ["text", "source"]
		}`),
	}
}

func (t *IngestDocumentTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		Text   string   `json:"text"`
		Source string   `json:"source"`
		Tags   []string `json:"tags"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}

	chunks, err := t.ingester.Ingest(ctx, args.Text, args.Source, nil, args.Tags)
	if err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("Error ingesting document: %v", err), IsError: true}, nil
	}
	return &domain.ToolResult{Content: fmt.Sprintf("ingested %q in %d chunks", args.Source, chunks)}, nil
}
