package index

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/groundbot/groundbot/internal/log"
)

// EmbedTimeout bounds a single embedding request.
const EmbedTimeout = 30 * time.Second

// embedBatchSize is the number of chunks embedded per request.
const embedBatchSize = 16

// Retrieval-oriented embedding prefixes. Prefixing passages and queries
// differently improves asymmetric retrieval with instruction-tuned
// embedding models and is harmless with the rest.
const (
	passagePrefix = "passage: "
	queryPrefix   = "query: "
)

// Store persists documentation chunks with embeddings in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   log.Logger
}

// NewStore creates a chunk store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embedBatch generates embeddings for a batch of texts in one request.
// The result is aligned with the input slice.
func (s *Store) embedBatch(ctx context.Context, texts []string, prefix string) ([]pgvector.Vector, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(prefix+t, nil)
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	dim := VectorDimension
	resp, err := s.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding batch of %d: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrNoEmbedding, len(resp.Embeddings), len(texts))
	}

	vecs := make([]pgvector.Vector, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, ErrNoEmbedding
		}
		vecs[i] = pgvector.NewVector(e.Embedding)
	}
	return vecs, nil
}

// Upsert embeds and stores chunks. Existing chunks for the same pack and
// page URL are replaced, so re-ingesting a page never accumulates stale
// duplicates.
func (s *Store) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// Embed outside the transaction; no connection held during model calls.
	vecs := make([]pgvector.Vector, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		batch, err := s.embedBatch(ctx, texts, passagePrefix)
		if err != nil {
			return err
		}
		vecs = append(vecs, batch...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Replace per page, not per chunk: a re-crawled page may produce fewer
	// chunks than before.
	seen := make(map[string]bool)
	for _, c := range chunks {
		key := c.PackKey + "\x00" + c.URL
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, err := tx.Exec(ctx,
			`DELETE FROM chunks WHERE pack_key = $1 AND url = $2`,
			c.PackKey, c.URL); err != nil {
			return fmt.Errorf("clearing stale chunks for %s: %w", c.URL, err)
		}
	}

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, pack_key, url, title, position, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.PackKey, c.URL, c.Title, c.Position, c.Content, vecs[i])
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}

	s.logger.Debug("upserted chunks", "count", len(chunks), "pack_key", chunks[0].PackKey)
	return nil
}

// Search returns the chunks most semantically similar to the query.
// Score is cosine similarity in [0, 1] (negative values are possible for
// opposed vectors but do not occur with real embeddings).
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	o := applySearchOptions(opts)

	qvecs, err := s.embedBatch(ctx, []string{query}, queryPrefix)
	if err != nil {
		return nil, err
	}

	sql := `SELECT id, pack_key, url, title, position, content,
	               1 - (embedding <=> $1) AS score
	        FROM chunks`
	args := []any{qvecs[0]}
	if o.packKey != "" {
		sql += ` WHERE pack_key = $2`
		args = append(args, o.packKey)
	}
	sql += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, o.limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// Lexical returns the chunks best matching the query by full-text search.
// Score is ts_rank, useful only for ordering within one result set.
func (s *Store) Lexical(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	o := applySearchOptions(opts)

	sql := `SELECT id, pack_key, url, title, position, content,
	               ts_rank(content_tsv, websearch_to_tsquery('english', $1))::float8 AS score
	        FROM chunks
	        WHERE content_tsv @@ websearch_to_tsquery('english', $1)`
	args := []any{query}
	if o.packKey != "" {
		sql += ` AND pack_key = $2`
		args = append(args, o.packKey)
	}
	sql += fmt.Sprintf(` ORDER BY score DESC LIMIT %d`, o.limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows pgx.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.PackKey, &r.URL, &r.Title, &r.Position, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	return results, nil
}

// Count returns the number of indexed chunks in one pack.
func (s *Store) Count(ctx context.Context, packKey string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE pack_key = $1`, packKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// CountByPack returns chunk counts for every pack that has chunks.
func (s *Store) CountByPack(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pack_key, count(*) FROM chunks GROUP BY pack_key`)
	if err != nil {
		return nil, fmt.Errorf("counting chunks by pack: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading counts: %w", err)
	}
	return counts, nil
}

// DeletePack removes every chunk belonging to one pack.
func (s *Store) DeletePack(ctx context.Context, packKey string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE pack_key = $1`, packKey)
	if err != nil {
		return fmt.Errorf("deleting pack chunks: %w", err)
	}
	s.logger.Debug("deleted pack chunks", "pack_key", packKey, "count", tag.RowsAffected())
	return nil
}
