package pack

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/groundbot/groundbot/internal/ingest"
	"github.com/groundbot/groundbot/internal/log"
	"github.com/groundbot/groundbot/internal/topic"
)

// backgroundTimeout bounds one background ingest run. Background work is
// detached from the request context on purpose: a client disconnect must
// not abandon a half-built pack.
const backgroundTimeout = 10 * time.Minute

// Ingestor runs the crawl-extract-chunk-index pipeline for a pack.
type Ingestor interface {
	IngestSources(ctx context.Context, packKey string, sources, subtopics []string, maxPages int) (ingest.Result, error)
}

// ChunkCounter reports indexed chunk counts.
type ChunkCounter interface {
	Count(ctx context.Context, packKey string) (int, error)
	CountByPack(ctx context.Context) (map[string]int, error)
}

// ManifestStore persists pack manifests.
type ManifestStore interface {
	Get(ctx context.Context, key string) (Manifest, error)
	Create(ctx context.Context, m Manifest) error
	RaiseCompleteness(ctx context.Context, key string, value float64) error
	AppendIngestLog(ctx context.Context, key string, urls []string) error
	List(ctx context.Context) ([]Manifest, error)
	Delete(ctx context.Context, key string) error
}

// Config holds the manager's ingest knobs.
type Config struct {
	// MaxPagesStageA bounds the synchronous first ingest per source.
	MaxPagesStageA int
	// MaxPagesStageB bounds the background deepening ingest per source.
	MaxPagesStageB int
	// TTLDays is how long a pack stays fresh before a background refresh.
	TTLDays int
}

// Summary is the external view of one pack, as served by the packs API.
type Summary struct {
	Key          string   `json:"key"`
	Tech         string   `json:"tech,omitempty"`
	Version      string   `json:"version"`
	Lang         string   `json:"lang"`
	Sources      []string `json:"sources"`
	Completeness float64  `json:"completeness"`
	Chunks       int      `json:"chunks"`
	RecentURLs   []string `json:"recent_urls,omitempty"`
}

// Manager owns the pack lifecycle: key derivation, stage A/B ingest,
// TTL-driven refresh, and summaries.
//
// Manager is safe for concurrent use by multiple goroutines.
type Manager struct {
	store    ManifestStore
	ingestor Ingestor
	counter  ChunkCounter
	cfg      Config
	logger   log.Logger

	mu       sync.Mutex
	inflight map[string]bool // pack keys with a background ingest running
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewManager creates a pack manager.
func NewManager(store ManifestStore, ingestor Ingestor, counter ChunkCounter, cfg Config, logger log.Logger) *Manager {
	return &Manager{
		store:    store,
		ingestor: ingestor,
		counter:  counter,
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[string]bool),
		now:      time.Now,
	}
}

// Ensure makes sure a pack exists for the decision and returns its key and
// status.
//
// New packs get a synchronous stage A ingest so the current turn can
// already retrieve from them, then a background stage B run deepens the
// pack. Existing packs return immediately; a stale pack additionally kicks
// off a background refresh and is served as-is in the meantime.
func (mgr *Manager) Ensure(ctx context.Context, d topic.Decision, lang string) (string, string, error) {
	key := Key(d.Tech, d.Version, lang, d.CandidateSources)

	existing, err := mgr.store.Get(ctx, key)
	switch {
	case err == nil:
		if existing.Stale(mgr.now()) {
			mgr.startBackground(key, existing.Sources, d.Subtopics, "refresh")
		}
		return key, StatusReady, nil
	case !errors.Is(err, ErrNotFound):
		return "", "", err
	}

	m := Manifest{
		Key:     key,
		Tech:    d.Tech,
		Version: orDefault(d.Version, "latest"),
		Lang:    lang,
		Sources: d.CandidateSources,
		TTLDays: mgr.cfg.TTLDays,
	}
	if err := mgr.store.Create(ctx, m); err != nil {
		return "", "", err
	}

	result, err := mgr.ingestor.IngestSources(ctx, key, m.Sources, d.Subtopics, mgr.cfg.MaxPagesStageA)
	if err != nil {
		return "", "", err
	}
	mgr.recordIngest(ctx, key, result, CompletenessStageA)

	mgr.startBackground(key, m.Sources, d.Subtopics, "stage B")

	if result.Chunks > 0 {
		return key, StatusReady, nil
	}
	return key, StatusBuilding, nil
}

// startBackground launches one tracked background ingest for the pack,
// unless one is already running.
func (mgr *Manager) startBackground(key string, sources, subtopics []string, reason string) {
	mgr.mu.Lock()
	if mgr.inflight[key] {
		mgr.mu.Unlock()
		return
	}
	mgr.inflight[key] = true
	mgr.mu.Unlock()

	mgr.wg.Add(1)
	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.mu.Lock()
			delete(mgr.inflight, key)
			mgr.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		mgr.logger.Info("background ingest starting", "pack_key", key, "reason", reason)
		result, err := mgr.ingestor.IngestSources(ctx, key, sources, subtopics, mgr.cfg.MaxPagesStageB)
		if err != nil {
			mgr.logger.Warn("background ingest failed", "pack_key", key, "error", err)
			return
		}
		mgr.recordIngest(ctx, key, result, CompletenessStageB)
	}()
}

// recordIngest logs the attempted URLs and raises completeness when the
// run produced chunks. Bookkeeping failures are logged, not propagated:
// the chunks are already indexed and retrievable.
func (mgr *Manager) recordIngest(ctx context.Context, key string, result ingest.Result, milestone float64) {
	if err := mgr.store.AppendIngestLog(ctx, key, result.URLs); err != nil {
		mgr.logger.Warn("recording ingest log failed", "pack_key", key, "error", err)
	}
	if result.Chunks == 0 {
		return
	}
	if err := mgr.store.RaiseCompleteness(ctx, key, milestone); err != nil {
		mgr.logger.Warn("raising completeness failed", "pack_key", key, "error", err)
	}
}

// Get returns the manifest for key.
func (mgr *Manager) Get(ctx context.Context, key string) (Manifest, error) {
	return mgr.store.Get(ctx, key)
}

// Summaries returns the external view of every pack, including indexed
// chunk counts and the most recently ingested URLs.
func (mgr *Manager) Summaries(ctx context.Context) ([]Summary, error) {
	manifests, err := mgr.store.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := mgr.counter.CountByPack(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(manifests))
	for _, m := range manifests {
		summaries = append(summaries, Summary{
			Key:          m.Key,
			Tech:         m.Tech,
			Version:      m.Version,
			Lang:         m.Lang,
			Sources:      m.Sources,
			Completeness: m.Completeness,
			Chunks:       counts[m.Key],
			RecentURLs:   lastN(m.IngestLog, 10),
		})
	}
	return summaries, nil
}

// Delete removes a pack and its chunks.
func (mgr *Manager) Delete(ctx context.Context, key string) error {
	return mgr.store.Delete(ctx, key)
}

// Close waits for in-flight background ingests to finish.
func (mgr *Manager) Close() {
	mgr.wg.Wait()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
