package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/groundbot/groundbot/internal/index"
	"github.com/groundbot/groundbot/internal/log"
)

const rescoreSystemPrompt = "You rank documentation passages by relevance to a question. " +
	"Reply with STRICT JSON: an array of the passage numbers, most relevant first, " +
	"e.g. [2,0,1]. Include every number exactly once. No other text."

// maxRescoreCandidates bounds the prompt size of one rescore call.
const maxRescoreCandidates = 20

// ModelReranker reorders fused candidates with a model call. It stands in
// for a cross-encoder: slower and costlier than RRF, so it is an opt-in
// refinement applied after fusion.
type ModelReranker struct {
	genkit    *genkit.Genkit
	modelName string
	logger    log.Logger
}

// NewModelReranker creates a model-backed reranker.
func NewModelReranker(g *genkit.Genkit, modelName string, logger log.Logger) *ModelReranker {
	return &ModelReranker{genkit: g, modelName: modelName, logger: logger}
}

// Rescore asks the model to reorder results by relevance to the query.
// On any failure the input order is returned unchanged; reranking is an
// improvement, never a gate.
func (m *ModelReranker) Rescore(ctx context.Context, query string, results []index.Result) []index.Result {
	if len(results) < 2 {
		return results
	}
	n := min(len(results), maxRescoreCandidates)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nPassages:\n", query)
	for i, r := range results[:n] {
		fmt.Fprintf(&sb, "[%d] %s\n", i, snippet(r.Content, 400))
	}

	resp, err := genkit.Generate(ctx, m.genkit,
		ai.WithModelName(m.modelName),
		ai.WithSystem(rescoreSystemPrompt),
		ai.WithPrompt("%s", sb.String()),
	)
	if err != nil {
		m.logger.Warn("model rerank failed, keeping fused order", "error", err)
		return results
	}

	order, ok := parseOrder(resp.Text(), n)
	if !ok {
		m.logger.Warn("model rerank returned invalid order, keeping fused order")
		return results
	}

	reordered := make([]index.Result, 0, len(results))
	for _, idx := range order {
		reordered = append(reordered, results[idx])
	}
	// Candidates beyond the prompt window keep their fused order.
	reordered = append(reordered, results[n:]...)
	return reordered
}

// parseOrder validates that the model returned a permutation of [0, n).
func parseOrder(text string, n int) ([]int, bool) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start == -1 || end <= start {
		return nil, false
	}

	var order []int
	if err := json.Unmarshal([]byte(text[start:end+1]), &order); err != nil {
		return nil, false
	}
	if len(order) != n {
		return nil, false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return nil, false
		}
		seen[idx] = true
	}
	return order, true
}

func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
