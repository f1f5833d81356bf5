package fs

import (
	"strings"
)

// Chunker splits text into windows of whole lines that overlap by a fixed
// number of lines.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. An overlap that is negative or not smaller
// than size is reduced so every chunk advances by at least one line.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 50
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits content. Windows holding only whitespace are dropped.
func (c *Chunker) Chunk(content string) []Chunk {
	content = strings.TrimRight(content, "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}
	lines := strings.Split(content, "\n")

	var chunks []Chunk
	step := c.size - c.overlap
	for start := 0; start < len(lines); start += step {
		end := min(start+c.size, len(lines))
		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				Content:   text,
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
