package topic

import (
	"context"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/groundbot/groundbot/internal/log"
)

const classifySystemPrompt = "Extract intent and scope for a docs-grounded assistant. " +
	"Prefer official documentation sources (kubernetes.io, docs.python.org, " +
	"redis.io, postgresql.org, react.dev, ubuntu.com, elastic.co, etc.). " +
	"Return STRICT JSON with: tech, subtopics, problem_focus " +
	"(specific_issue|general_overview|unknown), version, candidate_sources, " +
	"confidence (0..1), query_type (general_explanation|definition|how_to|" +
	"troubleshoot|compare|code_help|qa|unknown), needs_grounding (bool), " +
	"clarify (one short question or ''), rationale."

// Classifier turns user queries into grounding decisions using the
// configured model.
type Classifier struct {
	genkit    *genkit.Genkit
	modelName string
	logger    log.Logger
}

// NewClassifier creates a classifier. modelName must be provider-qualified
// (e.g. "googleai/gemini-2.5-flash").
func NewClassifier(g *genkit.Genkit, modelName string, logger log.Logger) *Classifier {
	return &Classifier{genkit: g, modelName: modelName, logger: logger}
}

// Classify asks the model for a grounding decision. It never returns an
// error: generation failures and malformed JSON both degrade to the safe
// zero decision so the turn can continue ungrounded.
func (c *Classifier) Classify(ctx context.Context, userMsg string) Decision {
	resp, err := genkit.Generate(ctx, c.genkit,
		ai.WithModelName(c.modelName),
		ai.WithSystem(classifySystemPrompt),
		ai.WithPrompt("User query:\n%s", userMsg),
	)
	if err != nil {
		c.logger.Warn("topic classification failed, continuing ungrounded", "error", err)
		return Fallback()
	}

	raw := strings.TrimSpace(resp.Text())
	m := extractJSON(raw)
	if m == nil {
		c.logger.Warn("topic classifier returned unparseable output",
			"output_length", len(raw))
		return Fallback()
	}

	d := coerce(m)
	c.logger.Debug("classified query",
		"tech", d.Tech,
		"query_type", d.QueryType,
		"confidence", d.Confidence,
		"needs_grounding", d.NeedsGrounding,
	)
	return d
}
