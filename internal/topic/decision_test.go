package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Run("plain JSON object", func(t *testing.T) {
		m := extractJSON(`{"tech": "Redis", "confidence": 0.9}`)
		require.NotNil(t, m)
		assert.Equal(t, "Redis", m["tech"])
	})

	t.Run("JSON wrapped in prose", func(t *testing.T) {
		m := extractJSON("Sure, here is the result:\n```json\n{\"tech\": \"Python\"}\n```\nDone.")
		require.NotNil(t, m)
		assert.Equal(t, "Python", m["tech"])
	})

	t.Run("no JSON at all", func(t *testing.T) {
		assert.Nil(t, extractJSON("I cannot answer that."))
	})

	t.Run("unbalanced braces", func(t *testing.T) {
		assert.Nil(t, extractJSON(`{"tech": "Redis"`))
	})

	t.Run("empty string", func(t *testing.T) {
		assert.Nil(t, extractJSON(""))
	})
}

func TestCoerce(t *testing.T) {
	t.Run("valid decision passes through", func(t *testing.T) {
		d := coerce(map[string]any{
			"tech":              "Kubernetes",
			"subtopics":         []any{"networking", "ingress"},
			"problem_focus":     "specific_issue",
			"version":           "1.29",
			"candidate_sources": []any{"https://kubernetes.io/docs/"},
			"confidence":        0.85,
			"query_type":        "troubleshoot",
			"needs_grounding":   true,
			"clarify":           "",
			"rationale":         "mentions CrashLoopBackOff",
		})
		assert.Equal(t, "Kubernetes", d.Tech)
		assert.Equal(t, []string{"networking", "ingress"}, d.Subtopics)
		assert.Equal(t, FocusSpecificIssue, d.ProblemFocus)
		assert.Equal(t, "1.29", d.Version)
		assert.Equal(t, []string{"https://kubernetes.io/docs/"}, d.CandidateSources)
		assert.InDelta(t, 0.85, d.Confidence, 1e-9)
		assert.Equal(t, QueryTroubleshoot, d.QueryType)
		assert.True(t, d.NeedsGrounding)
	})

	t.Run("nil map gives fallback", func(t *testing.T) {
		assert.Equal(t, Fallback(), coerce(nil))
	})

	t.Run("unknown enums coerce to unknown", func(t *testing.T) {
		d := coerce(map[string]any{
			"problem_focus": "urgent",
			"query_type":    "rant",
		})
		assert.Equal(t, FocusUnknown, d.ProblemFocus)
		assert.Equal(t, QueryUnknown, d.QueryType)
	})

	t.Run("enum case is normalized", func(t *testing.T) {
		d := coerce(map[string]any{
			"problem_focus": "Specific_Issue",
			"query_type":    "HOW_TO",
		})
		assert.Equal(t, FocusSpecificIssue, d.ProblemFocus)
		assert.Equal(t, QueryHowTo, d.QueryType)
	})

	t.Run("confidence is clamped", func(t *testing.T) {
		assert.Equal(t, 1.0, coerce(map[string]any{"confidence": 3.7}).Confidence)
		assert.Equal(t, 0.0, coerce(map[string]any{"confidence": -0.5}).Confidence)
		assert.Equal(t, 0.0, coerce(map[string]any{"confidence": "high"}).Confidence)
	})

	t.Run("non-http sources are dropped", func(t *testing.T) {
		d := coerce(map[string]any{
			"candidate_sources": []any{
				"https://redis.io/docs/",
				"ftp://redis.io/",
				"redis.io",
				"  http://example.com/docs  ",
			},
		})
		assert.Equal(t, []string{"https://redis.io/docs/", "http://example.com/docs"}, d.CandidateSources)
	})

	t.Run("wrong types degrade to zero values", func(t *testing.T) {
		d := coerce(map[string]any{
			"tech":            42,
			"subtopics":       "networking",
			"needs_grounding": "yes",
		})
		assert.Empty(t, d.Tech)
		assert.Nil(t, d.Subtopics)
		assert.False(t, d.NeedsGrounding)
	})

	t.Run("whitespace tech trims to empty", func(t *testing.T) {
		assert.Empty(t, coerce(map[string]any{"tech": "   "}).Tech)
	})
}

func TestFallback(t *testing.T) {
	d := Fallback()
	assert.Empty(t, d.Tech)
	assert.Equal(t, FocusUnknown, d.ProblemFocus)
	assert.Equal(t, QueryUnknown, d.QueryType)
	assert.Zero(t, d.Confidence)
	assert.False(t, d.NeedsGrounding)
}
