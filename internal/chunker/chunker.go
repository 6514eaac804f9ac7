// Package chunker defines the chunk records the indexing pipeline
// consumes. The semantic, language-aware chunker is an external
// collaborator; this package carries the record shape and a plain
// line-window implementation used as the default.
package chunker

import "strings"

// Chunk is one embeddable piece of a file.
type Chunk struct {
	Text         string
	Size         int    // size in bytes
	SemanticType string // e.g. "function", "class"; empty for plain windows
	StartLine    int
	EndLine      int
}

// Chunker splits file content into embeddable chunks.
type Chunker interface {
	Chunk(path string, content []byte) []Chunk
}

// Default window geometry for LineWindow.
const (
	DefaultWindowLines  = 60
	DefaultOverlapLines = 10
)

// LineWindow chunks files into fixed-size overlapping line windows.
type LineWindow struct {
	WindowLines  int
	OverlapLines int
}

// NewLineWindow creates a LineWindow chunker with default geometry.
func NewLineWindow() *LineWindow {
	return &LineWindow{WindowLines: DefaultWindowLines, OverlapLines: DefaultOverlapLines}
}

// Chunk splits content into overlapping line windows. Empty content
// yields no chunks; trailing partial windows are kept.
func (c *LineWindow) Chunk(path string, content []byte) []Chunk {
	window := c.WindowLines
	if window < 1 {
		window = DefaultWindowLines
	}
	overlap := c.OverlapLines
	if overlap < 0 || overlap >= window {
		overlap = 0
	}

	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")

	step := window - overlap
	var chunks []Chunk
	for start := 0; start < len(lines); start += step {
		end := start + window
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) != "" {
			chunks = append(chunks, Chunk{
				Text:      body,
				Size:      len(body),
				StartLine: start + 1,
				EndLine:   end,
			})
		}
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// EstimateTokens approximates the token cost of a chunk for rate-limiter
// accounting: roughly one token per four bytes of source.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
