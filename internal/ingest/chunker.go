package ingest

// Default chunking parameters, in runes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits extracted page text into fixed-size overlapping chunks.
type Chunker struct {
	chunkSize int
	overlap   int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the chunk size in runes.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in runes.
func WithOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker creates a chunker with the given options.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// Split cuts text into chunks of at most chunkSize runes, each overlapping
// the previous by overlap runes. Splitting on runes keeps multi-byte
// characters intact.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)
	step := c.chunkSize - c.overlap

	chunks := make([]string, 0, total/step+1)
	for start := 0; start < total; start += step {
		end := min(start+c.chunkSize, total)
		chunks = append(chunks, string(runes[start:end]))
		if end == total {
			break
		}
	}
	return chunks
}
