// Package index stores and retrieves documentation chunks in PostgreSQL.
//
// Chunks carry a pgvector embedding for semantic search and a generated
// tsvector column for lexical search. Both retrieval legs run against the
// same table; fusion of the two rankings happens in the rerank package.
package index

import (
	"errors"
)

// VectorDimension is the embedding width stored in the chunks table.
// The embedder is asked to truncate its output to this many dimensions,
// which must match the vector(N) column in the migration.
const VectorDimension int32 = 768

var (
	// ErrEmptyQuery indicates a search with no query text.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrNoEmbedding indicates the embedder returned no vector for a text.
	ErrNoEmbedding = errors.New("embedder returned no embedding")
)

// Chunk is one indexed slice of a documentation page.
type Chunk struct {
	ID       string
	PackKey  string
	URL      string
	Title    string
	Position int
	Content  string
}

// Result is one retrieval hit.
type Result struct {
	Chunk
	// Score is leg-specific: cosine similarity for semantic search,
	// ts_rank for lexical search.
	Score float64
}

// SearchOption configures a search call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	limit   int
	packKey string
}

// WithLimit caps the number of results. Defaults to 20.
func WithLimit(n int) SearchOption {
	return func(o *searchOptions) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithPackKey restricts the search to a single documentation pack.
func WithPackKey(key string) SearchOption {
	return func(o *searchOptions) {
		o.packKey = key
	}
}

func applySearchOptions(opts []SearchOption) searchOptions {
	o := searchOptions{limit: 20}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
