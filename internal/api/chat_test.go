package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundbot/groundbot/internal/answer"
	"github.com/groundbot/groundbot/internal/index"
	"github.com/groundbot/groundbot/internal/testutil"
	"github.com/groundbot/groundbot/internal/topic"
)

type stubClassifier struct {
	decision topic.Decision
}

func (s *stubClassifier) Classify(context.Context, string) topic.Decision {
	return s.decision
}

type stubEnsurer struct{}

func (*stubEnsurer) Ensure(context.Context, topic.Decision, string) (string, string, error) {
	return "pack-1", "ready", nil
}

type stubEngineSearcher struct {
	results []index.Result
}

func (s *stubEngineSearcher) Search(context.Context, string, ...index.SearchOption) ([]index.Result, error) {
	return s.results, nil
}

func (s *stubEngineSearcher) Lexical(context.Context, string, ...index.SearchOption) ([]index.Result, error) {
	return nil, nil
}

func (s *stubEngineSearcher) Count(context.Context, string) (int, error) {
	return len(s.results) * 10, nil
}

// chatFlow builds a real flow over a mock model for SSE tests.
func chatFlow(t *testing.T, modelText string, decision topic.Decision, results []index.Result) *answer.Flow {
	t.Helper()

	g := testutil.NewGenkit(t)
	mock := testutil.NewMockModel(modelText)
	mock.Register(g)

	engine := answer.NewEngine(g,
		&stubClassifier{decision: decision},
		&stubEnsurer{},
		&stubEngineSearcher{results: results},
		answer.Config{ModelName: "mock/test-model", MinConfidence: 0.35},
		testutil.DiscardLogger(),
	)

	answer.ResetFlowForTesting()
	return answer.NewFlow(g, engine)
}

func groundedResults() []index.Result {
	return []index.Result{{
		Chunk: index.Chunk{
			ID:      "c1",
			URL:     "https://redis.io/docs/persistence",
			Title:   "Persistence",
			Content: "RDB snapshots persist the dataset to disk.",
		},
		Score: 0.9,
	}}
}

func TestChatStreamGrounded(t *testing.T) {
	flow := chatFlow(t, "Snapshots write the dataset to disk.", topic.Decision{
		Tech:             "redis",
		CandidateSources: []string{"https://redis.io/docs"},
		Confidence:       0.9,
	}, groundedResults())

	ts := testServer(t, ServerConfig{ChatFlow: flow})

	resp, err := http.Post(ts.URL+"/api/v1/chat/stream", "application/json",
		strings.NewReader(`{"message":"how does persistence work?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := readAll(t, resp)
	events := testutil.ParseSSEEvents(t, body)

	chunks := testutil.FindAllEvents(events, EventChunk)
	require.NotEmpty(t, chunks, "grounded answers must stream chunks")

	done := testutil.FindEvent(events, EventDone)
	require.NotNil(t, done)

	var out answer.Output
	require.NoError(t, json.Unmarshal([]byte(done.Data), &out))
	assert.Equal(t, answer.ModeGrounded, out.Mode)
	assert.Equal(t, "pack-1", out.PackKey)
	require.Len(t, out.Citations, 1)
	assert.Equal(t, "https://redis.io/docs/persistence", out.Citations[0].URL)
	assert.Contains(t, out.Response, "Snapshots write")
}

func TestChatStreamClarify(t *testing.T) {
	flow := chatFlow(t, "unused", topic.Decision{Confidence: 0.1}, nil)
	ts := testServer(t, ServerConfig{ChatFlow: flow})

	resp, err := http.Post(ts.URL+"/api/v1/chat/stream", "application/json",
		strings.NewReader(`{"message":"it is broken"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := testutil.ParseSSEEvents(t, readAll(t, resp))
	done := testutil.FindEvent(events, EventDone)
	require.NotNil(t, done)

	var out answer.Output
	require.NoError(t, json.Unmarshal([]byte(done.Data), &out))
	assert.Equal(t, answer.ModeClarify, out.Mode)
	assert.Equal(t, answer.DefaultClarifyQuestion, out.Response)
	assert.Empty(t, out.Citations)
}

func TestChatStreamAcceptsMessagesArray(t *testing.T) {
	flow := chatFlow(t, "unused", topic.Decision{Confidence: 0.1}, nil)
	ts := testServer(t, ServerConfig{ChatFlow: flow})

	resp, err := http.Post(ts.URL+"/api/v1/chat/stream", "application/json",
		strings.NewReader(`{"messages":[{"role":"user","content":"help"},{"role":"assistant","content":"with what?"},{"role":"user","content":"it broke"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := testutil.ParseSSEEvents(t, readAll(t, resp))
	require.NotNil(t, testutil.FindEvent(events, EventDone))
}

func TestChatStreamRejectsEmptyMessage(t *testing.T) {
	flow := chatFlow(t, "unused", topic.Decision{}, nil)
	ts := testServer(t, ServerConfig{ChatFlow: flow})

	resp, err := http.Post(ts.URL+"/api/v1/chat/stream", "application/json",
		strings.NewReader(`{"message":""}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := testutil.ParseSSEEvents(t, readAll(t, resp))
	errEvent := testutil.FindEvent(events, EventError)
	require.NotNil(t, errEvent)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal([]byte(errEvent.Data), &payload))
	assert.Equal(t, "missing_message", payload.Code)
}

func TestChatStreamRejectsBadJSON(t *testing.T) {
	flow := chatFlow(t, "unused", topic.Decision{}, nil)
	ts := testServer(t, ServerConfig{ChatFlow: flow})

	resp, err := http.Post(ts.URL+"/api/v1/chat/stream", "application/json",
		strings.NewReader(`{not json`))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := testutil.ParseSSEEvents(t, readAll(t, resp))
	errEvent := testutil.FindEvent(events, EventError)
	require.NotNil(t, errEvent)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
