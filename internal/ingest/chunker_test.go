package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestWordChunkerSplit(t *testing.T) {
	t.Run("empty input yields no chunks", func(t *testing.T) {
		assert.Nil(t, NewWordChunker(500, 50).Split("   \n\t "))
	})

	t.Run("short input is a single chunk", func(t *testing.T) {
		chunks := NewWordChunker(500, 50).Split("hello world")
		require.Len(t, chunks, 1)
		assert.Equal(t, "hello world", chunks[0].Text)
	})

	t.Run("windows overlap by the configured amount", func(t *testing.T) {
		chunks := NewWordChunker(10, 3).Split(words(24))
		// step 7: windows start at 0, 7, 14, 21
		require.Len(t, chunks, 4)

		first := strings.Fields(chunks[0].Text)
		second := strings.Fields(chunks[1].Text)
		require.Len(t, first, 10)
		assert.Equal(t, first[7:], second[:3])
	})

	t.Run("last window is truncated, never empty", func(t *testing.T) {
		chunks := NewWordChunker(10, 3).Split(words(22))
		require.Len(t, chunks, 4)
		assert.Equal(t, "w21", chunks[3].Text)
	})

	t.Run("deterministic", func(t *testing.T) {
		text := words(1234)
		c := NewWordChunker(500, 50)
		assert.Equal(t, c.Split(text), c.Split(text))
	})

	t.Run("literal value with overlap at or above size still terminates", func(t *testing.T) {
		chunks := WordChunker{Size: 5, Overlap: 5}.Split(words(12))
		// step clamps to one word, so every window advances
		require.Len(t, chunks, 12)
		assert.Equal(t, "w0 w1 w2 w3 w4", chunks[0].Text)
		assert.Equal(t, "w1 w2 w3 w4 w5", chunks[1].Text)

		chunks = WordChunker{Size: 3, Overlap: 9}.Split(words(6))
		require.Len(t, chunks, 6)
	})

	t.Run("literal value with non-positive size still terminates", func(t *testing.T) {
		chunks := WordChunker{}.Split(words(4))
		require.Len(t, chunks, 1)
	})

	t.Run("constructor clamps bad geometry", func(t *testing.T) {
		c := NewWordChunker(0, -5)
		assert.Equal(t, DefaultChunkSize, c.Size)
		assert.Equal(t, 0, c.Overlap)

		c = NewWordChunker(10, 10)
		assert.Equal(t, 9, c.Overlap)
	})
}

func TestHeadingChunkerSplit(t *testing.T) {
	t.Run("splits at headings with nested paths", func(t *testing.T) {
		text := "intro text\n# Setup\nstep one\n## Install\nrun the installer\n# Usage\ntype commands"
		chunks := NewHeadingChunker(500, 50).Split(text)
		require.Len(t, chunks, 4)

		assert.Equal(t, "intro text", chunks[0].Text)
		assert.Equal(t, "", chunks[0].Heading)

		assert.Equal(t, "Setup", chunks[1].Heading)
		assert.Contains(t, chunks[1].Text, "step one")

		assert.Equal(t, "Setup > Install", chunks[2].Heading)
		assert.Contains(t, chunks[2].Text, "run the installer")

		assert.Equal(t, "Usage", chunks[3].Heading)
	})

	t.Run("sibling heading pops the stack", func(t *testing.T) {
		text := "# A\n## B\nbody b\n## C\nbody c"
		chunks := NewHeadingChunker(500, 50).Split(text)
		require.Len(t, chunks, 2)
		assert.Equal(t, "A > B", chunks[0].Heading)
		assert.Equal(t, "A > C", chunks[1].Heading)
	})

	t.Run("oversized section falls back to word windows keeping the heading", func(t *testing.T) {
		text := "# Big\n" + words(25)
		chunks := NewHeadingChunker(10, 2).Split(text)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.Equal(t, "Big", c.Heading)
		}
	})

	t.Run("no headings produces one chunk with empty path", func(t *testing.T) {
		chunks := NewHeadingChunker(500, 50).Split("plain prose only")
		require.Len(t, chunks, 1)
		assert.Equal(t, "", chunks[0].Heading)
	})
}
