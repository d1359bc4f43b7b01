package answer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/sync/errgroup"

	"github.com/groundbot/groundbot/internal/index"
	"github.com/groundbot/groundbot/internal/log"
	"github.com/groundbot/groundbot/internal/pack"
	"github.com/groundbot/groundbot/internal/rerank"
	"github.com/groundbot/groundbot/internal/topic"
)

const groundedSystemPrompt = `You are a grounded support assistant.
- Use ONLY the provided context snippets and cite their URLs.
- If context is insufficient, say what's missing and stop.`

// Classifier turns a user message into a routing decision.
type Classifier interface {
	Classify(ctx context.Context, userMsg string) topic.Decision
}

// PackEnsurer makes sure a documentation pack exists for a decision.
type PackEnsurer interface {
	Ensure(ctx context.Context, d topic.Decision, lang string) (key, status string, err error)
}

// Searcher runs the two retrieval legs over the chunk index.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...index.SearchOption) ([]index.Result, error)
	Lexical(ctx context.Context, query string, opts ...index.SearchOption) ([]index.Result, error)
	Count(ctx context.Context, packKey string) (int, error)
}

// Reranker reorders fused candidates. Implementations must degrade to
// returning the input unchanged on failure.
type Reranker interface {
	Rescore(ctx context.Context, query string, results []index.Result) []index.Result
}

// StreamCallback receives answer text chunks as the model produces them.
type StreamCallback func(ctx context.Context, chunk string) error

// Config tunes the retrieval and answering behaviour of an Engine.
type Config struct {
	ModelName     string
	Lang          string
	TopK          int
	MaxCitations  int
	MinConfidence float64
}

// Engine runs the full plan, retrieve, answer pipeline for one turn.
type Engine struct {
	genkit     *genkit.Genkit
	classifier Classifier
	packs      PackEnsurer
	searcher   Searcher
	reranker   Reranker
	cfg        Config
	logger     log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithReranker adds a model-based rescoring pass after rank fusion.
func WithReranker(r Reranker) Option {
	return func(e *Engine) { e.reranker = r }
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(g *genkit.Genkit, classifier Classifier, packs PackEnsurer, searcher Searcher, cfg Config, logger log.Logger, opts ...Option) *Engine {
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 20
	}
	if cfg.MaxCitations <= 0 {
		cfg.MaxCitations = 4
	}
	e := &Engine{
		genkit:     g,
		classifier: classifier,
		packs:      packs,
		searcher:   searcher,
		cfg:        cfg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan classifies the query and decides between a grounded answer and a
// clarifying question. Grounded turns also get their pack ensured here,
// so a first question about a technology triggers the initial crawl.
func (e *Engine) Plan(ctx context.Context, query string) (Turn, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Turn{}, ErrEmptyMessage
	}

	turn := Turn{Query: query}
	turn.Decision = e.classifier.Classify(ctx, query)

	if len(turn.Decision.CandidateSources) == 0 || turn.Decision.Confidence < e.cfg.MinConfidence {
		e.logger.Info("turn needs clarification",
			"tech", turn.Decision.Tech,
			"confidence", turn.Decision.Confidence,
			"sources", len(turn.Decision.CandidateSources))
		turn.Mode = ModeClarify
		return turn, nil
	}

	key, status, err := e.packs.Ensure(ctx, turn.Decision, e.cfg.Lang)
	if err != nil {
		return Turn{}, err
	}
	turn.Mode = ModeGrounded
	turn.PackKey = key
	e.logger.Info("pack ensured", "pack_key", key, "status", status, "tech", turn.Decision.Tech)
	return turn, nil
}

// Retrieve fills a grounded turn with fused evidence. A grounded turn
// that yields no evidence falls back to clarify mode so the model never
// answers from thin air.
func (e *Engine) Retrieve(ctx context.Context, turn Turn) (Turn, error) {
	if turn.Mode != ModeGrounded {
		return turn, nil
	}

	indexed, err := e.searcher.Count(ctx, turn.PackKey)
	if err != nil {
		return Turn{}, err
	}
	preK := rerank.PreK(e.cfg.TopK, indexed)
	if preK == 0 {
		turn.Mode = ModeClarify
		return turn, nil
	}

	opts := []index.SearchOption{index.WithLimit(preK), index.WithPackKey(turn.PackKey)}

	var semantic, lexical []index.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semantic, err = e.searcher.Search(gctx, turn.Query, opts...)
		return err
	})
	g.Go(func() error {
		var err error
		lexical, err = e.searcher.Lexical(gctx, turn.Query, opts...)
		return err
	})
	if err := g.Wait(); err != nil {
		return Turn{}, err
	}

	fused := rerank.Fuse(semantic, lexical, e.cfg.TopK)
	if e.reranker != nil {
		fused = e.reranker.Rescore(ctx, turn.Query, fused)
	}
	if len(fused) == 0 {
		e.logger.Info("retrieval found no evidence", "pack_key", turn.PackKey)
		turn.Mode = ModeClarify
		return turn, nil
	}

	for _, r := range fused {
		turn.Context = append(turn.Context, Snippet{Title: r.Title, URL: r.URL, Text: r.Content})
	}
	for _, r := range fused {
		if len(turn.Citations) == e.cfg.MaxCitations {
			break
		}
		if containsURL(turn.Citations, r.URL) {
			continue
		}
		turn.Citations = append(turn.Citations, Citation{Title: r.Title, URL: r.URL, Score: r.Score})
	}
	return turn, nil
}

// StreamAnswer generates the turn's final text, forwarding chunks to cb
// as they arrive. Clarify turns emit their question directly without a
// model round trip, so the user always sees the exact question planned.
func (e *Engine) StreamAnswer(ctx context.Context, turn Turn, cb StreamCallback) (string, error) {
	if turn.Mode == ModeClarify {
		question := strings.TrimSpace(turn.Decision.Clarify)
		if question == "" {
			question = DefaultClarifyQuestion
		}
		if cb != nil {
			if err := cb(ctx, question); err != nil {
				return "", err
			}
		}
		return question, nil
	}

	prompt, err := groundedPrompt(turn)
	if err != nil {
		return "", err
	}

	genOpts := []ai.GenerateOption{
		ai.WithModelName(e.cfg.ModelName),
		ai.WithSystem(groundedSystemPrompt),
		ai.WithPrompt(prompt),
	}
	if cb != nil {
		genOpts = append(genOpts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return cb(ctx, chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, e.genkit, genOpts...)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Answer runs the whole pipeline for one query and returns the finished
// turn alongside the generated text.
func (e *Engine) Answer(ctx context.Context, query string, cb StreamCallback) (Turn, string, error) {
	turn, err := e.Plan(ctx, query)
	if err != nil {
		return Turn{}, "", err
	}
	turn, err = e.Retrieve(ctx, turn)
	if err != nil {
		return Turn{}, "", err
	}
	text, err := e.StreamAnswer(ctx, turn, cb)
	if err != nil {
		return Turn{}, "", err
	}
	return turn, text, nil
}

// groundedPrompt packs the question and evidence into the user prompt.
// The evidence travels as JSON so snippet boundaries survive verbatim.
func groundedPrompt(turn Turn) (string, error) {
	payload := struct {
		Question string    `json:"question"`
		Tech     string    `json:"tech"`
		Context  []Snippet `json:"context"`
	}{
		Question: turn.Query,
		Tech:     turn.Decision.Tech,
		Context:  turn.Context,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Answer the question using the grounding payload below.\n\n")
	b.Write(raw)
	return b.String(), nil
}

func containsURL(cs []Citation, url string) bool {
	for _, c := range cs {
		if c.URL == url {
			return true
		}
	}
	return false
}

var _ PackEnsurer = (*pack.Manager)(nil)
