package answer

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
)

// FlowName is the registered name of the chat flow in Genkit.
const FlowName = "groundbot/chat"

// Input is the request payload for the chat flow. Either a bare message
// or a chat-style messages array is accepted; with both present the
// messages array wins.
type Input struct {
	Message  string    `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// Message is one entry of a chat-style request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage returns the text that drives the turn: the last user
// message of the array, or the bare message field.
func (in Input) UserMessage() string {
	for i := len(in.Messages) - 1; i >= 0; i-- {
		if in.Messages[i].Role == "user" {
			return in.Messages[i].Content
		}
	}
	return in.Message
}

// Output is the final payload of one chat turn. Citations arrive here
// rather than in the stream because they are only known once retrieval
// has settled.
type Output struct {
	Response  string     `json:"response"`
	Mode      string     `json:"mode"`
	PackKey   string     `json:"packKey,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// StreamChunk carries one partial text fragment to the client.
type StreamChunk struct {
	Text string `json:"text"`
}

// Flow is the chat flow type, exported for use with genkit.Handler.
type Flow = core.Flow[Input, Output, StreamChunk]

// Flow registration is global in Genkit and panics on re-registration,
// so the flow lives behind a package-level singleton.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the chat flow singleton, defining it on first call.
// Subsequent calls return the existing flow and ignore the arguments.
func NewFlow(g *genkit.Genkit, engine *Engine) *Flow {
	flowOnce.Do(func() {
		flow = defineFlow(g, engine)
	})
	return flow
}

// ResetFlowForTesting clears the flow singleton so tests can register
// against a fresh Genkit instance. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

func defineFlow(g *genkit.Genkit, engine *Engine) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, input Input, streamCb func(context.Context, StreamChunk) error) (Output, error) {
			var cb StreamCallback
			if streamCb != nil {
				cb = func(ctx context.Context, chunk string) error {
					if chunk == "" {
						return nil
					}
					return streamCb(ctx, StreamChunk{Text: chunk})
				}
			}

			turn, text, err := engine.Answer(ctx, input.UserMessage(), cb)
			if err != nil {
				return Output{}, err
			}
			return Output{
				Response:  text,
				Mode:      turn.Mode,
				PackKey:   turn.PackKey,
				Citations: turn.Citations,
			}, nil
		},
	)
}
