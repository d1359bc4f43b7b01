package answer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundbot/groundbot/internal/index"
	"github.com/groundbot/groundbot/internal/testutil"
	"github.com/groundbot/groundbot/internal/topic"
)

type fakeClassifier struct {
	decision topic.Decision
}

func (f *fakeClassifier) Classify(context.Context, string) topic.Decision {
	return f.decision
}

type fakeEnsurer struct {
	key    string
	status string
	err    error
	calls  int
}

func (f *fakeEnsurer) Ensure(_ context.Context, _ topic.Decision, _ string) (string, string, error) {
	f.calls++
	return f.key, f.status, f.err
}

type fakeSearcher struct {
	indexed  int
	semantic []index.Result
	lexical  []index.Result
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ ...index.SearchOption) ([]index.Result, error) {
	return f.semantic, f.err
}

func (f *fakeSearcher) Lexical(_ context.Context, _ string, _ ...index.SearchOption) ([]index.Result, error) {
	return f.lexical, f.err
}

func (f *fakeSearcher) Count(_ context.Context, _ string) (int, error) {
	return f.indexed, nil
}

func groundedDecision() topic.Decision {
	return topic.Decision{
		Tech:             "redis",
		CandidateSources: []string{"https://redis.io/docs"},
		Confidence:       0.9,
		QueryType:        topic.QueryHowTo,
	}
}

func chunkResult(id, url string, score float64) index.Result {
	return index.Result{
		Chunk: index.Chunk{
			ID:      id,
			URL:     url,
			Title:   "Persistence",
			Content: "RDB snapshots persist the dataset to disk at intervals.",
		},
		Score: score,
	}
}

func testEngine(t *testing.T, classifier Classifier, packs PackEnsurer, searcher Searcher) *Engine {
	t.Helper()
	g := testutil.NewGenkit(t)
	mock := testutil.NewMockModel("mock answer")
	mock.Register(g)
	return NewEngine(g, classifier, packs, searcher, Config{
		ModelName:     "mock/test-model",
		TopK:          20,
		MaxCitations:  4,
		MinConfidence: 0.35,
	}, testutil.DiscardLogger())
}

func TestPlanClarifiesWithoutSources(t *testing.T) {
	packs := &fakeEnsurer{}
	e := testEngine(t, &fakeClassifier{decision: topic.Decision{Tech: "redis", Confidence: 0.9}}, packs, &fakeSearcher{})

	turn, err := e.Plan(context.Background(), "how do snapshots work?")
	require.NoError(t, err)

	assert.Equal(t, ModeClarify, turn.Mode)
	assert.Zero(t, packs.calls, "clarify turns must not trigger a crawl")
}

func TestPlanClarifiesOnLowConfidence(t *testing.T) {
	d := groundedDecision()
	d.Confidence = 0.2
	e := testEngine(t, &fakeClassifier{decision: d}, &fakeEnsurer{}, &fakeSearcher{})

	turn, err := e.Plan(context.Background(), "it is broken")
	require.NoError(t, err)
	assert.Equal(t, ModeClarify, turn.Mode)
}

func TestPlanGroundedEnsuresPack(t *testing.T) {
	packs := &fakeEnsurer{key: "abc123", status: "ready"}
	e := testEngine(t, &fakeClassifier{decision: groundedDecision()}, packs, &fakeSearcher{})

	turn, err := e.Plan(context.Background(), "how do I enable RDB persistence?")
	require.NoError(t, err)

	assert.Equal(t, ModeGrounded, turn.Mode)
	assert.Equal(t, "abc123", turn.PackKey)
	assert.Equal(t, 1, packs.calls)
}

func TestPlanRejectsEmptyMessage(t *testing.T) {
	e := testEngine(t, &fakeClassifier{}, &fakeEnsurer{}, &fakeSearcher{})

	_, err := e.Plan(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestPlanPropagatesEnsureError(t *testing.T) {
	packs := &fakeEnsurer{err: errors.New("db down")}
	e := testEngine(t, &fakeClassifier{decision: groundedDecision()}, packs, &fakeSearcher{})

	_, err := e.Plan(context.Background(), "how do I enable persistence?")
	assert.Error(t, err)
}

func TestRetrieveFusesBothLegs(t *testing.T) {
	searcher := &fakeSearcher{
		indexed:  100,
		semantic: []index.Result{chunkResult("a", "https://redis.io/docs/persistence", 0.9)},
		lexical:  []index.Result{chunkResult("a", "https://redis.io/docs/persistence", 0.5)},
	}
	e := testEngine(t, &fakeClassifier{}, &fakeEnsurer{}, searcher)

	turn, err := e.Retrieve(context.Background(), Turn{
		Query:   "persistence",
		Mode:    ModeGrounded,
		PackKey: "abc123",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeGrounded, turn.Mode)
	require.Len(t, turn.Context, 1)
	assert.Contains(t, turn.Context[0].Text, "RDB snapshots")
	require.Len(t, turn.Citations, 1)
	assert.Equal(t, "https://redis.io/docs/persistence", turn.Citations[0].URL)
}

func TestRetrieveCapsAndDedupesCitations(t *testing.T) {
	var semantic []index.Result
	for i := range 10 {
		// two chunks per page, so URLs repeat
		semantic = append(semantic, chunkResult(
			fmt.Sprintf("c%d", i),
			fmt.Sprintf("https://redis.io/docs/p%d", i/2),
			1.0-float64(i)*0.05,
		))
	}
	e := testEngine(t, &fakeClassifier{}, &fakeEnsurer{}, &fakeSearcher{indexed: 100, semantic: semantic})

	turn, err := e.Retrieve(context.Background(), Turn{Query: "q", Mode: ModeGrounded, PackKey: "k"})
	require.NoError(t, err)

	assert.Len(t, turn.Context, 10)
	require.Len(t, turn.Citations, 4)
	seen := map[string]bool{}
	for _, c := range turn.Citations {
		assert.False(t, seen[c.URL], "citation URLs must be unique")
		seen[c.URL] = true
	}
}

func TestRetrieveEmptyIndexFallsBackToClarify(t *testing.T) {
	e := testEngine(t, &fakeClassifier{}, &fakeEnsurer{}, &fakeSearcher{indexed: 0})

	turn, err := e.Retrieve(context.Background(), Turn{Query: "q", Mode: ModeGrounded, PackKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ModeClarify, turn.Mode)
}

func TestRetrieveNoResultsFallsBackToClarify(t *testing.T) {
	e := testEngine(t, &fakeClassifier{}, &fakeEnsurer{}, &fakeSearcher{indexed: 50})

	turn, err := e.Retrieve(context.Background(), Turn{Query: "q", Mode: ModeGrounded, PackKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ModeClarify, turn.Mode)
	assert.Empty(t, turn.Citations)
}

func TestRetrieveSkipsClarifyTurns(t *testing.T) {
	searcher := &fakeSearcher{indexed: 50, semantic: []index.Result{chunkResult("a", "https://x", 0.9)}}
	e := testEngine(t, &fakeClassifier{}, &fakeEnsurer{}, searcher)

	turn, err := e.Retrieve(context.Background(), Turn{Query: "q", Mode: ModeClarify})
	require.NoError(t, err)
	assert.Empty(t, turn.Context)
}

func TestStreamAnswerClarifyUsesDecisionQuestion(t *testing.T) {
	e := testEngine(t, &fakeClassifier{}, &fakeEnsurer{}, &fakeSearcher{})

	var streamed []string
	cb := func(_ context.Context, chunk string) error {
		streamed = append(streamed, chunk)
		return nil
	}

	text, err := e.StreamAnswer(context.Background(), Turn{
		Mode:     ModeClarify,
		Decision: topic.Decision{Clarify: "Which Redis version are you running?"},
	}, cb)
	require.NoError(t, err)

	assert.Equal(t, "Which Redis version are you running?", text)
	assert.Equal(t, []string{"Which Redis version are you running?"}, streamed)
}

func TestStreamAnswerClarifyFallbackQuestion(t *testing.T) {
	e := testEngine(t, &fakeClassifier{}, &fakeEnsurer{}, &fakeSearcher{})

	text, err := e.StreamAnswer(context.Background(), Turn{Mode: ModeClarify}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultClarifyQuestion, text)
}

func TestStreamAnswerGrounded(t *testing.T) {
	g := testutil.NewGenkit(t)
	mock := testutil.NewMockModel("fallback")
	mock.AddResponse("RDB snapshots", "RDB snapshots save to disk. Source: https://redis.io/docs/persistence")
	mock.Register(g)

	e := NewEngine(g, &fakeClassifier{}, &fakeEnsurer{}, &fakeSearcher{}, Config{
		ModelName: "mock/test-model",
	}, testutil.DiscardLogger())

	turn := Turn{
		Query:    "how does persistence work?",
		Mode:     ModeGrounded,
		Decision: groundedDecision(),
		Context: []Snippet{{
			Title: "Persistence",
			URL:   "https://redis.io/docs/persistence",
			Text:  "RDB snapshots persist the dataset to disk at intervals.",
		}},
	}

	var streamed string
	text, err := e.StreamAnswer(context.Background(), turn, func(_ context.Context, chunk string) error {
		streamed += chunk
		return nil
	})
	require.NoError(t, err)

	assert.Contains(t, text, "RDB snapshots save to disk")
	assert.Equal(t, text, streamed)

	// the evidence must reach the model inside the prompt
	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].UserMessage, "how does persistence work?")
	assert.Contains(t, calls[0].UserMessage, "RDB snapshots persist")
}

func TestAnswerEndToEndClarify(t *testing.T) {
	e := testEngine(t, &fakeClassifier{decision: topic.Decision{Confidence: 0.1}}, &fakeEnsurer{}, &fakeSearcher{})

	turn, text, err := e.Answer(context.Background(), "halp", nil)
	require.NoError(t, err)

	assert.Equal(t, ModeClarify, turn.Mode)
	assert.Equal(t, DefaultClarifyQuestion, text)
}

func TestAnswerEndToEndGrounded(t *testing.T) {
	searcher := &fakeSearcher{
		indexed:  50,
		semantic: []index.Result{chunkResult("a", "https://redis.io/docs/persistence", 0.9)},
	}
	e := testEngine(t, &fakeClassifier{decision: groundedDecision()}, &fakeEnsurer{key: "k1", status: "ready"}, searcher)

	turn, text, err := e.Answer(context.Background(), "how does persistence work?", nil)
	require.NoError(t, err)

	assert.Equal(t, ModeGrounded, turn.Mode)
	assert.Equal(t, "k1", turn.PackKey)
	assert.NotEmpty(t, text)
	require.Len(t, turn.Citations, 1)
}
