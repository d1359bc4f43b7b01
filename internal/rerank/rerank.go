// Package rerank orders retrieval candidates before answer generation.
//
// The primary pass is reciprocal rank fusion of the semantic and lexical
// retrieval legs. An optional second pass asks the model to reorder the
// fused candidates; it is off by default and never fails a turn.
package rerank

import (
	"cmp"
	"slices"

	"github.com/groundbot/groundbot/internal/index"
)

// rrfConstant dampens the contribution of top ranks so one leg cannot
// dominate the fusion. 60 is the value from the original RRF paper.
const rrfConstant = 60

// PreK returns how many candidates to pull from each retrieval leg before
// fusing down to k: at least 30, at least 3x the final count, never more
// than the number of indexed chunks.
func PreK(k, indexed int) int {
	if indexed <= 0 {
		return 0
	}
	return min(max(3*k, 30), indexed)
}

// Fuse merges the two retrieval legs with reciprocal rank fusion and
// returns at most topK results, scored by the fused RRF value.
//
// When a chunk appears in both legs its contributions add up, which is the
// point: agreement between unrelated rankers is the strongest relevance
// signal available without a cross-encoder. Ties break by semantic
// similarity, then chunk ID, so the ordering is deterministic.
func Fuse(semantic, lexical []index.Result, topK int) []index.Result {
	if topK <= 0 {
		return nil
	}

	type candidate struct {
		result   index.Result
		fused    float64
		semScore float64
	}
	byID := make(map[string]*candidate, len(semantic)+len(lexical))

	for rank, r := range semantic {
		byID[r.ID] = &candidate{
			result:   r,
			fused:    1.0 / float64(rrfConstant+rank+1),
			semScore: r.Score,
		}
	}
	for rank, r := range lexical {
		score := 1.0 / float64(rrfConstant+rank+1)
		if c, ok := byID[r.ID]; ok {
			c.fused += score
			continue
		}
		byID[r.ID] = &candidate{result: r, fused: score}
	}

	candidates := make([]*candidate, 0, len(byID))
	for _, c := range byID {
		candidates = append(candidates, c)
	}
	slices.SortFunc(candidates, func(a, b *candidate) int {
		if c := cmp.Compare(b.fused, a.fused); c != 0 {
			return c
		}
		if c := cmp.Compare(b.semScore, a.semScore); c != 0 {
			return c
		}
		return cmp.Compare(a.result.ID, b.result.ID)
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	results := make([]index.Result, len(candidates))
	for i, c := range candidates {
		r := c.result
		r.Score = c.fused
		results[i] = r
	}
	return results
}
