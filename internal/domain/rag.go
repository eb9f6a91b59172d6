package domain

import "context"

// SearchResult is a single retrieved knowledge-base chunk.
type SearchResult struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Source   string   `json:"source,omitempty"`
	Skills   []string `json:"skills,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Distance float64  `json:"distance"`
}

// RAGSearcher retrieves knowledge-base context for prompt assembly.
// Implementations must scope results: a document whose skills list is empty
// is visible to every skill; a non-empty list restricts visibility to the
// named skills.
type RAGSearcher interface {
	Search(ctx context.Context, query string, topK int, skills, tags []string) ([]SearchResult, error)
}

// Document is a stored knowledge-base document (pre-chunking identity).
type Document struct {
	Source string   `json:"source"`
	Skills []string `json:"skills,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Chunks int      `json:"chunks"`
}
