// Package topic classifies a user query into a grounding decision.
//
// The classifier asks the model for strict JSON describing the technology,
// subtopics, candidate documentation sources, and whether the turn needs
// documentation grounding at all. Model output is untrusted: every field is
// coerced into its allowed range, and a malformed response degrades to a
// zero-value Decision instead of failing the turn.
package topic

import (
	"encoding/json"
	"strings"
)

// Problem focus values. Anything else coerces to FocusUnknown.
const (
	FocusSpecificIssue   = "specific_issue"
	FocusGeneralOverview = "general_overview"
	FocusUnknown         = "unknown"
)

// Query type values. Anything else coerces to QueryUnknown.
const (
	QueryGeneralExplanation = "general_explanation"
	QueryDefinition         = "definition"
	QueryHowTo              = "how_to"
	QueryTroubleshoot       = "troubleshoot"
	QueryCompare            = "compare"
	QueryCodeHelp           = "code_help"
	QueryQA                 = "qa"
	QueryUnknown            = "unknown"
)

var allowedQueryTypes = map[string]bool{
	QueryGeneralExplanation: true,
	QueryDefinition:         true,
	QueryHowTo:              true,
	QueryTroubleshoot:       true,
	QueryCompare:            true,
	QueryCodeHelp:           true,
	QueryQA:                 true,
	QueryUnknown:            true,
}

// Decision is the classifier's verdict for one user query.
//
// The zero value is the safe fallback: no tech, zero confidence, grounding
// off. Callers treat it as "answer from general knowledge".
type Decision struct {
	// Tech is the domain or subject inferred from the query (Python,
	// Kubernetes, Redis, ...). Empty when the model could not tell.
	Tech string `json:"tech,omitempty"`
	// Subtopics are aspects within the domain.
	Subtopics []string `json:"subtopics,omitempty"`
	// ProblemFocus is one of the Focus* constants.
	ProblemFocus string `json:"problem_focus"`
	// Version holds a version constraint if the query implies one.
	Version string `json:"version,omitempty"`
	// CandidateSources are official documentation base URLs, http(s) only.
	CandidateSources []string `json:"candidate_sources,omitempty"`
	// Confidence is the classifier's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence"`
	// QueryType is one of the Query* constants.
	QueryType string `json:"query_type"`
	// NeedsGrounding reports whether this turn should retrieve documentation.
	NeedsGrounding bool `json:"needs_grounding"`
	// Clarify is a single clarifying question when the query is too
	// ambiguous to ground, otherwise empty.
	Clarify string `json:"clarify,omitempty"`
	// Rationale is a short model-provided reason, kept for debugging.
	Rationale string `json:"rationale,omitempty"`
}

// Fallback returns the safe zero decision used when classification fails.
func Fallback() Decision {
	return Decision{ProblemFocus: FocusUnknown, QueryType: QueryUnknown}
}

// extractJSON pulls a JSON object out of raw model text. Models wrap JSON in
// prose or code fences often enough that a direct parse is tried first, then
// the widest brace-delimited span.
func extractJSON(text string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err == nil {
		return m
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return nil
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &m); err != nil {
		return nil
	}
	return m
}

// coerce normalizes an untrusted decoded object into a valid Decision.
// Unknown enum values, out-of-range confidence, and non-http sources are
// all clamped rather than rejected.
func coerce(m map[string]any) Decision {
	d := Fallback()
	if m == nil {
		return d
	}

	d.Tech = coerceString(m["tech"])
	d.Version = coerceString(m["version"])
	d.Clarify = coerceString(m["clarify"])
	d.Rationale = coerceString(m["rationale"])
	d.Subtopics = coerceStrings(m["subtopics"])

	if pf := strings.ToLower(coerceString(m["problem_focus"])); pf == FocusSpecificIssue || pf == FocusGeneralOverview {
		d.ProblemFocus = pf
	}
	if qt := strings.ToLower(coerceString(m["query_type"])); allowedQueryTypes[qt] {
		d.QueryType = qt
	}

	if c, ok := m["confidence"].(float64); ok {
		d.Confidence = min(max(c, 0), 1)
	}
	if b, ok := m["needs_grounding"].(bool); ok {
		d.NeedsGrounding = b
	}

	for _, s := range coerceStrings(m["candidate_sources"]) {
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			d.CandidateSources = append(d.CandidateSources, s)
		}
	}

	return d
}

func coerceString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
