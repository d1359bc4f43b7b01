// Package ingest fetches official documentation on demand and turns it into
// indexed chunks.
//
// The pipeline per source: crawl a keyword-guided slice of the site, extract
// readable text from each page, split into overlapping chunks, and hand the
// chunks to the index for embedding and storage. Sources are processed
// concurrently; a failing source is skipped so one bad URL cannot sink a
// whole pack.
package ingest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/groundbot/groundbot/internal/index"
	"github.com/groundbot/groundbot/internal/log"
)

// maxRecordedURLs bounds the URL list returned from one ingest run.
const maxRecordedURLs = 100

// Fetcher crawls one documentation source.
type Fetcher interface {
	Crawl(ctx context.Context, source string, keywords []string, maxPages int) ([]Page, []string, error)
}

// Indexer embeds and stores chunks.
type Indexer interface {
	Upsert(ctx context.Context, chunks []index.Chunk) error
}

// Result summarizes one ingest run.
type Result struct {
	Pages  int
	Chunks int
	// URLs lists the attempted page URLs, deduplicated, most recent kept,
	// capped at maxRecordedURLs.
	URLs []string
}

// Ingestor runs the crawl-extract-chunk-index pipeline.
type Ingestor struct {
	fetcher Fetcher
	chunker *Chunker
	indexer Indexer
	logger  log.Logger
}

// New creates an ingestor.
func New(fetcher Fetcher, chunker *Chunker, indexer Indexer, logger log.Logger) *Ingestor {
	return &Ingestor{
		fetcher: fetcher,
		chunker: chunker,
		indexer: indexer,
		logger:  logger,
	}
}

// IngestSources crawls every source concurrently and indexes what it finds.
// Subtopics steer link selection within each site. maxPages bounds the page
// count per source. A source that fails to crawl or index is logged and
// skipped. The error return is reserved for context cancellation.
func (ing *Ingestor) IngestSources(ctx context.Context, packKey string, sources, subtopics []string, maxPages int) (Result, error) {
	if len(sources) == 0 {
		return Result{}, nil
	}

	var (
		mu     sync.Mutex
		result Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)

	for _, source := range sources {
		g.Go(func() error {
			pages, attempted, err := ing.fetcher.Crawl(gctx, source, subtopics, maxPages)
			if err != nil {
				ing.logger.Warn("skipping documentation source",
					"source", source, "pack_key", packKey, "error", err)
				return nil
			}

			chunks := ing.chunkPages(packKey, pages)
			if len(chunks) > 0 {
				if err := ing.indexer.Upsert(gctx, chunks); err != nil {
					ing.logger.Warn("indexing source failed",
						"source", source, "pack_key", packKey, "error", err)
					return nil
				}
			}

			mu.Lock()
			result.Pages += len(pages)
			result.Chunks += len(chunks)
			result.URLs = append(result.URLs, attempted...)
			mu.Unlock()
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	result.URLs = dedupeTail(result.URLs, maxRecordedURLs)
	ing.logger.Info("ingest run complete",
		"pack_key", packKey,
		"sources", len(sources),
		"pages", result.Pages,
		"chunks", result.Chunks,
	)
	return result, nil
}

func (ing *Ingestor) chunkPages(packKey string, pages []Page) []index.Chunk {
	var chunks []index.Chunk
	for _, page := range pages {
		for i, content := range ing.chunker.Split(page.Text) {
			chunks = append(chunks, index.Chunk{
				ID:       uuid.New().String(),
				PackKey:  packKey,
				URL:      page.URL,
				Title:    page.Title,
				Position: i,
				Content:  content,
			})
		}
	}
	return chunks
}

// dedupeTail removes duplicate URLs keeping first occurrences, then keeps
// the last n entries.
func dedupeTail(urls []string, n int) []string {
	seen := make(map[string]bool, len(urls))
	dedup := urls[:0]
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		dedup = append(dedup, u)
	}
	if len(dedup) > n {
		dedup = dedup[len(dedup)-n:]
	}
	return dedup
}
