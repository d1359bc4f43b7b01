package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerSplit(t *testing.T) {
	t.Run("empty text produces no chunks", func(t *testing.T) {
		assert.Nil(t, NewChunker().Split(""))
	})

	t.Run("short text is a single chunk", func(t *testing.T) {
		chunks := NewChunker().Split("hello world")
		require.Len(t, chunks, 1)
		assert.Equal(t, "hello world", chunks[0])
	})

	t.Run("chunks overlap by the configured amount", func(t *testing.T) {
		c := NewChunker(WithChunkSize(10), WithOverlap(4))
		text := "abcdefghijklmnopqrstuvwxyz"
		chunks := c.Split(text)

		require.Len(t, chunks, 4)
		assert.Equal(t, "abcdefghij", chunks[0])
		assert.Equal(t, "ghijklmnop", chunks[1])
		assert.Equal(t, "mnopqrstuv", chunks[2])
		assert.Equal(t, "stuvwxyz", chunks[3])

		// Consecutive chunks share their boundary runes.
		assert.Equal(t, chunks[0][6:], chunks[1][:4])
	})

	t.Run("exact multiple has no trailing empty chunk", func(t *testing.T) {
		c := NewChunker(WithChunkSize(5), WithOverlap(0))
		chunks := c.Split("aaaaabbbbb")
		require.Len(t, chunks, 2)
		assert.Equal(t, "bbbbb", chunks[1])
	})

	t.Run("multibyte runes stay intact", func(t *testing.T) {
		c := NewChunker(WithChunkSize(4), WithOverlap(1))
		chunks := c.Split("héllö wörld")
		for _, chunk := range chunks {
			assert.True(t, strings.ToValidUTF8(chunk, "�") == chunk,
				"chunk %q contains invalid UTF-8", chunk)
		}
	})

	t.Run("overlap at or above chunk size is clamped", func(t *testing.T) {
		c := NewChunker(WithChunkSize(8), WithOverlap(8))
		chunks := c.Split(strings.Repeat("x", 30))
		assert.NotEmpty(t, chunks)
		assert.Equal(t, 2, c.overlap)
	})

	t.Run("invalid options keep defaults", func(t *testing.T) {
		c := NewChunker(WithChunkSize(0), WithOverlap(-5))
		assert.Equal(t, DefaultChunkSize, c.chunkSize)
		assert.Equal(t, DefaultChunkOverlap, c.overlap)
	})
}
