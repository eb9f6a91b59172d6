package rag

import "strings"

// Chunking defaults tuned for short knowledge-base documents.
const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 50
)

// chunkText splits text into overlapping chunks of roughly chunkSize
// characters, preferring to break at paragraph boundaries, then sentence
// boundaries, before falling back to a hard cut. Boundaries in the first
// half of a chunk are ignored so chunks never degenerate to fragments.
func chunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = defaultChunkOverlap
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := end
		if idx := strings.LastIndex(text[start:end], "\n\n"); idx > chunkSize/2 {
			cut = start + idx
		} else if idx := lastSentenceEnd(text[start:end]); idx > chunkSize/2 {
			cut = start + idx
		}

		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return chunks
}

// lastSentenceEnd returns the index just past the last sentence terminator
// in s, or -1 if none is found.
func lastSentenceEnd(s string) int {
	best := -1
	for _, term := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(s, term); idx >= 0 && idx+1 > best {
			best = idx + 1
		}
	}
	return best
}
