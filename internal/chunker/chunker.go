// Package chunker splits extracted document text into overlapping word windows.
package chunker

import "strings"

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker with the given window size and overlap (in words).
func New(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap}
}

// Split returns consecutive windows of up to size words advancing by
// max(size-overlap, 1) words. Blank windows are dropped. Empty or
// whitespace-only input returns nil, which signals "no extractable content"
// upstream and is not an error.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.size - c.overlap
	if step <= 0 {
		step = 1
	}
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.TrimSpace(strings.Join(words[start:end], " "))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(words) {
			break
		}
	}
	return chunks
}
