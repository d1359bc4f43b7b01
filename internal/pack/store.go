package pack

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested pack does not exist.
var ErrNotFound = errors.New("pack not found")

const manifestCols = `key, tech, version, lang, sources, completeness, ttl_days,
	ingest_log, created_at, updated_at`

// Store persists pack manifests in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a manifest store.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Get returns the manifest for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (Manifest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+manifestCols+` FROM packs WHERE key = $1`, key)
	return scanManifest(row)
}

// Create inserts a new manifest. Concurrent creation of the same key is
// harmless: the second insert is a no-op and the caller proceeds with the
// stored row.
func (s *Store) Create(ctx context.Context, m Manifest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO packs (key, tech, version, lang, sources, completeness, ttl_days, ingest_log)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (key) DO NOTHING`,
		m.Key, m.Tech, m.Version, m.Lang, m.Sources, m.Completeness, m.TTLDays, m.IngestLog)
	if err != nil {
		return fmt.Errorf("creating pack %s: %w", m.Key, err)
	}
	return nil
}

// RaiseCompleteness lifts the pack's completeness to at least value and
// touches updated_at. Completeness never decreases through this path.
func (s *Store) RaiseCompleteness(ctx context.Context, key string, value float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE packs
		 SET completeness = LEAST(1.0, GREATEST(completeness, $2)), updated_at = now()
		 WHERE key = $1`,
		key, value)
	if err != nil {
		return fmt.Errorf("raising completeness for %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("raising completeness for %s: %w", key, ErrNotFound)
	}
	return nil
}

// AppendIngestLog merges newly attempted URLs into the pack's ingest log.
// The row is locked for the read-modify-write so concurrent stage A and
// stage B runs cannot drop each other's URLs.
func (s *Store) AppendIngestLog(ctx context.Context, key string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prev []string
	err = tx.QueryRow(ctx,
		`SELECT ingest_log FROM packs WHERE key = $1 FOR UPDATE`, key).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("appending ingest log for %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading ingest log for %s: %w", key, err)
	}

	merged := mergeIngestLog(prev, urls)
	if _, err := tx.Exec(ctx,
		`UPDATE packs SET ingest_log = $2, updated_at = now() WHERE key = $1`,
		key, merged); err != nil {
		return fmt.Errorf("writing ingest log for %s: %w", key, err)
	}
	return tx.Commit(ctx)
}

// List returns all manifests, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Manifest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+manifestCols+` FROM packs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing packs: %w", err)
	}
	defer rows.Close()

	var manifests []Manifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading packs: %w", err)
	}
	return manifests, nil
}

// Delete removes a manifest. Chunks cascade via the foreign key.
func (s *Store) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM packs WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting pack %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanManifest(row pgx.Row) (Manifest, error) {
	var m Manifest
	err := row.Scan(&m.Key, &m.Tech, &m.Version, &m.Lang, &m.Sources,
		&m.Completeness, &m.TTLDays, &m.IngestLog, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Manifest{}, ErrNotFound
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("scanning pack: %w", err)
	}
	return m, nil
}
