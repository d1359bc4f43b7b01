// Package answer orchestrates one question-answering turn: classify the
// query, ensure a documentation pack, retrieve and fuse evidence, then
// stream either a grounded answer with citations or a single clarifying
// question.
package answer

import (
	"errors"

	"github.com/groundbot/groundbot/internal/topic"
)

// Turn modes.
const (
	// ModeClarify means the turn could not be grounded and the assistant
	// asks one clarifying question instead of answering.
	ModeClarify = "clarify"
	// ModeGrounded means the turn answers from retrieved documentation.
	ModeGrounded = "grounded"
)

// DefaultClarifyQuestion is asked when the classifier did not supply a
// more specific one.
const DefaultClarifyQuestion = "Could you clarify the exact aspect you want help with?"

var (
	// ErrEmptyMessage indicates a turn with no user message.
	ErrEmptyMessage = errors.New("message is empty")
)

// Snippet is one piece of retrieved evidence handed to the model.
type Snippet struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Citation points at a source page backing the answer.
type Citation struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// Turn carries the state of one question-answering turn through the
// plan, retrieve, and answer phases.
type Turn struct {
	Query     string
	Mode      string
	Decision  topic.Decision
	PackKey   string
	Context   []Snippet
	Citations []Citation
}
