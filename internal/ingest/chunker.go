package ingest

import (
	"regexp"
	"strings"
)

// Chunk is one ordered text window produced by a Chunker, optionally tagged
// with the nearest structural heading path.
type Chunk struct {
	Text    string
	Heading string
}

// Chunker splits reconstructed document content into ordered chunks. A
// Chunker must be deterministic: the same content and configuration always
// produce the same chunks.
type Chunker interface {
	Split(text string) []Chunk
}

// Default word-window geometry, in words.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// WordChunker splits content into fixed-size overlapping word windows.
type WordChunker struct {
	Size    int
	Overlap int
}

// NewWordChunker creates a WordChunker, substituting defaults for
// non-positive size and clamping overlap below size.
func NewWordChunker(size, overlap int) WordChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return WordChunker{Size: size, Overlap: overlap}
}

// Split implements Chunker. Degenerate geometry on a literally constructed
// value is tolerated: a non-positive size falls back to the default and the
// step is kept at least one word so the window always advances.
func (c WordChunker) Split(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	size := c.Size
	if size <= 0 {
		size = DefaultChunkSize
	}
	step := size - c.Overlap
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{Text: strings.Join(words[start:end], " ")})
	}
	return chunks
}

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// HeadingChunker splits markdown content at heading boundaries, recording the
// nearest heading path for each chunk. Sections longer than MaxWords fall
// back to word windowing, with every window keeping the section's heading.
type HeadingChunker struct {
	MaxWords int
	Overlap  int
}

// NewHeadingChunker creates a HeadingChunker with the same defaulting rules
// as NewWordChunker.
func NewHeadingChunker(maxWords, overlap int) HeadingChunker {
	w := NewWordChunker(maxWords, overlap)
	return HeadingChunker{MaxWords: w.Size, Overlap: w.Overlap}
}

// Split implements Chunker.
func (c HeadingChunker) Split(text string) []Chunk {
	type heading struct {
		level int
		title string
	}

	var (
		chunks  []Chunk
		stack   []heading
		section []string
	)

	headingPath := func() string {
		titles := make([]string, len(stack))
		for i, h := range stack {
			titles[i] = h.title
		}
		return strings.Join(titles, " > ")
	}

	flush := func() {
		body := strings.TrimSpace(strings.Join(section, "\n"))
		section = section[:0]
		if body == "" {
			return
		}

		path := headingPath()
		if len(strings.Fields(body)) <= c.MaxWords {
			chunks = append(chunks, Chunk{Text: body, Heading: path})
			return
		}
		for _, windowed := range (WordChunker{Size: c.MaxWords, Overlap: c.Overlap}).Split(body) {
			chunks = append(chunks, Chunk{Text: windowed.Text, Heading: path})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			section = append(section, line)
			continue
		}

		flush()

		level := len(m[1])
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, heading{level: level, title: m[2]})
	}
	flush()

	return chunks
}
