package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func TestChunkEmptyContent(t *testing.T) {
	c := NewLineWindow()
	if got := c.Chunk("a.go", nil); got != nil {
		t.Errorf("empty content should yield no chunks, got %d", len(got))
	}
	if got := c.Chunk("a.go", []byte("   \n\n  ")); got != nil {
		t.Errorf("whitespace-only content should yield no chunks, got %d", len(got))
	}
}

func TestChunkSmallFileSingleChunk(t *testing.T) {
	c := NewLineWindow()
	content := "package main\n\nfunc main() {}\n"
	chunks := c.Chunk("main.go", []byte(content))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartLine != 1 {
		t.Errorf("start line: got %d, want 1", chunks[0].StartLine)
	}
	if chunks[0].Size != len(chunks[0].Text) {
		t.Errorf("size %d does not match text length %d", chunks[0].Size, len(chunks[0].Text))
	}
}

func TestChunkWindowsOverlap(t *testing.T) {
	c := &LineWindow{WindowLines: 10, OverlapLines: 2}

	var b strings.Builder
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	chunks := c.Chunk("big.py", []byte(b.String()))

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks for 25 lines with window 10/step 8, got %d", len(chunks))
	}
	// Consecutive windows share OverlapLines lines.
	if chunks[1].StartLine != chunks[0].StartLine+8 {
		t.Errorf("second window starts at %d, want %d", chunks[1].StartLine, chunks[0].StartLine+8)
	}
	if chunks[0].EndLine-chunks[1].StartLine+1 != 2 {
		t.Errorf("windows should overlap by 2 lines, got %d", chunks[0].EndLine-chunks[1].StartLine+1)
	}
}

func TestChunkCoversAllLines(t *testing.T) {
	c := &LineWindow{WindowLines: 7, OverlapLines: 3}

	var b strings.Builder
	for i := 1; i <= 40; i++ {
		fmt.Fprintf(&b, "content line %d\n", i)
	}
	chunks := c.Chunk("f.rs", []byte(b.String()))

	covered := make(map[int]bool)
	for _, ch := range chunks {
		for l := ch.StartLine; l <= ch.EndLine; l++ {
			covered[l] = true
		}
	}
	for l := 1; l <= 40; l++ {
		if !covered[l] {
			t.Errorf("line %d not covered by any chunk", l)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 1 {
		t.Errorf("empty text estimate: got %d, want 1", got)
	}
	if got := EstimateTokens(strings.Repeat("x", 400)); got != 100 {
		t.Errorf("400-byte estimate: got %d, want 100", got)
	}
}
