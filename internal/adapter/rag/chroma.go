package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"agentgw/internal/domain"
)

const defaultTopK = 3

// Client is a ChromaDB REST client implementing domain.RAGSearcher.
// The vector index itself lives in the Chroma server; this client only
// chunks, ships and filters.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	collectionID string
}

// Compile-time interface assertion.
var _ domain.RAGSearcher = (*Client)(nil)

// NewClient creates a Chroma client for the named collection.
// The collection is created lazily on first use.
func NewClient(baseURL, collection string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// --- Chroma wire types ---

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type chromaAddRequest struct {
	IDs       []string         `json:"ids"`
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
}

type chromaQueryRequest struct {
	QueryTexts []string `json:"query_texts"`
	NResults   int      `json:"n_results"`
	Include    []string `json:"include"`
}

type chromaQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

type chromaGetRequest struct {
	Where   map[string]any `json:"where,omitempty"`
	Include []string       `json:"include"`
}

type chromaGetResponse struct {
	IDs       []string         `json:"ids"`
	Metadatas []map[string]any `json:"metadatas"`
}

type chromaDeleteRequest struct {
	IDs   []string       `json:"ids,omitempty"`
	Where map[string]any `json:"where,omitempty"`
}

// ensureCollection resolves (creating if needed) the collection ID.
func (c *Client) ensureCollection(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	body, _ := json.Marshal(map[string]any{
		"name":          c.collection,
		"get_or_create": true,
	})
	respBody, err := c.do(ctx, http.MethodPost, "/api/v1/collections", body)
	if err != nil {
		return "", fmt.Errorf("%w: get or create collection: %v", domain.ErrVectorStore, err)
	}

	var coll chromaCollection
	if err := json.Unmarshal(respBody, &coll); err != nil {
		return "", fmt.Errorf("%w: decode collection: %v", domain.ErrVectorStore, err)
	}
	c.collectionID = coll.ID
	return coll.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chroma API error %d: %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}

// Ingest chunks text and adds the chunks to the collection. Skills scope
// visibility (empty = visible to all skills); tags are free-form labels.
// Returns the number of chunks stored.
func (c *Client) Ingest(ctx context.Context, text, source string, skills, tags []string) (int, error) {
	collID, err := c.ensureCollection(ctx)
	if err != nil {
		return 0, err
	}

	chunks := chunkText(text, defaultChunkSize, defaultChunkOverlap)
	if len(chunks) == 0 {
		return 0, domain.NewDomainError("Client.Ingest", domain.ErrInvalidInput, "empty document")
	}

	add := chromaAddRequest{
		IDs:       make([]string, len(chunks)),
		Documents: chunks,
		Metadatas: make([]map[string]any, len(chunks)),
	}
	now := time.Now().UnixNano()
	for i := range chunks {
		add.IDs[i] = fmt.Sprintf("%s-%d-%d", source, now, i)
		add.Metadatas[i] = map[string]any{
			"source": source,
			"skills": strings.Join(skills, ","),
			"tags":   strings.Join(tags, ","),
			"chunk":  i,
		}
	}

	body, err := json.Marshal(add)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal add: %v", domain.ErrVectorStore, err)
	}
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/collections/"+collID+"/add", body); err != nil {
		return 0, fmt.Errorf("%w: add chunks: %v", domain.ErrVectorStore, err)
	}

	c.logger.Info("document ingested",
		"source", source,
		"chunks", len(chunks),
		"skills", skills,
	)
	return len(chunks), nil
}

// Search implements domain.RAGSearcher. It over-fetches 3x when scope
// filters are present, then post-filters: documents with an empty skills
// list match every skill, while tag filters require at least one tag match
// and never admit untagged documents.
func (c *Client) Search(ctx context.Context, query string, topK int, skills, tags []string) ([]domain.SearchResult, error) {
	collID, err := c.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	if topK <= 0 {
		topK = defaultTopK
	}
	fetch := topK
	if len(skills) > 0 || len(tags) > 0 {
		fetch = topK * 3
	}

	body, err := json.Marshal(chromaQueryRequest{
		QueryTexts: []string{query},
		NResults:   fetch,
		Include:    []string{"documents", "metadatas", "distances"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal query: %v", domain.ErrVectorStore, err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/api/v1/collections/"+collID+"/query", body)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrVectorStore, err)
	}

	var qr chromaQueryResponse
	if err := json.Unmarshal(respBody, &qr); err != nil {
		return nil, fmt.Errorf("%w: decode query response: %v", domain.ErrVectorStore, err)
	}
	if len(qr.IDs) == 0 {
		return nil, nil
	}

	var results []domain.SearchResult
	for i := range qr.IDs[0] {
		res := domain.SearchResult{ID: qr.IDs[0][i]}
		if len(qr.Documents) > 0 && i < len(qr.Documents[0]) {
			res.Text = qr.Documents[0][i]
		}
		if len(qr.Distances) > 0 && i < len(qr.Distances[0]) {
			res.Distance = qr.Distances[0][i]
		}
		if len(qr.Metadatas) > 0 && i < len(qr.Metadatas[0]) {
			meta := qr.Metadatas[0][i]
			res.Source, _ = meta["source"].(string)
			res.Skills = splitMeta(meta, "skills")
			res.Tags = splitMeta(meta, "tags")
		}

		if !matchesSkills(res.Skills, skills) {
			continue
		}
		if !matchesTags(res.Tags, tags) {
			continue
		}

		results = append(results, res)
		if len(results) >= topK {
			break
		}
	}

	return results, nil
}

// ListDocuments returns the distinct documents in the collection, grouped
// by source with chunk counts.
func (c *Client) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	collID, err := c.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(chromaGetRequest{Include: []string{"metadatas"}})
	respBody, err := c.do(ctx, http.MethodPost, "/api/v1/collections/"+collID+"/get", body)
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", domain.ErrVectorStore, err)
	}

	var gr chromaGetResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return nil, fmt.Errorf("%w: decode get response: %v", domain.ErrVectorStore, err)
	}

	bySource := make(map[string]*domain.Document)
	var order []string
	for _, meta := range gr.Metadatas {
		source, _ := meta["source"].(string)
		doc, ok := bySource[source]
		if !ok {
			doc = &domain.Document{
				Source: source,
				Skills: splitMeta(meta, "skills"),
				Tags:   splitMeta(meta, "tags"),
			}
			bySource[source] = doc
			order = append(order, source)
		}
		doc.Chunks++
	}

	docs := make([]domain.Document, 0, len(order))
	for _, source := range order {
		docs = append(docs, *bySource[source])
	}
	return docs, nil
}

// DeleteBySource removes every chunk of the named document.
func (c *Client) DeleteBySource(ctx context.Context, source string) error {
	collID, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}

	body, _ := json.Marshal(chromaDeleteRequest{
		Where: map[string]any{"source": source},
	})
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/collections/"+collID+"/delete", body); err != nil {
		return fmt.Errorf("%w: delete by source: %v", domain.ErrVectorStore, err)
	}
	return nil
}

func splitMeta(meta map[string]any, key string) []string {
	raw, _ := meta[key].(string)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// matchesSkills reports whether a document scoped to docSkills is visible
// to any of the querying skills. Empty docSkills means visible to all.
func matchesSkills(docSkills, want []string) bool {
	if len(want) == 0 || len(docSkills) == 0 {
		return true
	}
	for _, w := range want {
		for _, s := range docSkills {
			if s == w {
				return true
			}
		}
	}
	return false
}

// matchesTags requires at least one tag in common when a tag filter is set.
// Untagged documents never match a tag filter.
func matchesTags(docTags, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, t := range docTags {
			if t == w {
				return true
			}
		}
	}
	return false
}
