// Package pack manages documentation packs: versioned bundles of crawled
// official documentation keyed by technology, version, language, and
// source set.
//
// A pack is created on first demand. Stage A ingests a small slice of each
// source synchronously so the current turn can already ground on it; stage
// B continues in the background with a larger page budget. Completeness
// tracks how far along that lifecycle a pack is.
package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Pack status values returned by Ensure.
const (
	StatusReady    = "ready"
	StatusBuilding = "building"
)

// Completeness milestones. Stage A leaves a usable but thin pack; stage B
// raises it to a solid baseline. 1.0 is reserved for future exhaustive
// crawls.
const (
	CompletenessStageA = 0.3
	CompletenessStageB = 0.6
)

// Ingest log bounds: merge scans the most recent window, the stored log
// keeps the tail.
const (
	ingestLogWindow = 200
	ingestLogKeep   = 50
)

// Manifest describes one documentation pack.
type Manifest struct {
	Key          string    `json:"key"`
	Tech         string    `json:"tech,omitempty"`
	Version      string    `json:"version"`
	Lang         string    `json:"lang"`
	Sources      []string  `json:"sources"`
	Completeness float64   `json:"completeness"`
	TTLDays      int       `json:"ttl_days"`
	IngestLog    []string  `json:"ingest_log,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Stale reports whether the pack is past its TTL and due for a refresh,
// measured from the last update.
func (m *Manifest) Stale(now time.Time) bool {
	if m.TTLDays <= 0 {
		return false
	}
	return now.Sub(m.UpdatedAt) > time.Duration(m.TTLDays)*24*time.Hour
}

// Key derives the pack key from its identity fields. Empty tech and
// version fall back to "generic" and "latest" so that unversioned queries
// about the same sources share a pack. Sources are sorted, so their order
// never changes the key.
func Key(tech, version, lang string, sources []string) string {
	if tech == "" {
		tech = "generic"
	}
	if version == "" {
		version = "latest"
	}
	sorted := make([]string, len(sources))
	copy(sorted, sources)
	sort.Strings(sorted)

	raw := fmt.Sprintf("%s|%s|%s|%s", tech, version, lang, strings.Join(sorted, ","))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// mergeIngestLog appends newly attempted URLs to the log, deduplicates
// within the recent window, and keeps the tail.
func mergeIngestLog(prev, urls []string) []string {
	if len(urls) == 0 {
		return prev
	}
	merged := append(append([]string{}, prev...), urls...)
	if len(merged) > ingestLogWindow {
		merged = merged[len(merged)-ingestLogWindow:]
	}

	seen := make(map[string]bool, len(merged))
	out := merged[:0]
	for _, u := range merged {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	if len(out) > ingestLogKeep {
		out = out[len(out)-ingestLogKeep:]
	}
	return out
}
