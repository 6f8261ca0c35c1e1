package chain

import (
	"context"
	"strings"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
)

// LLMChain is the plain chat pipeline: system prompt, bounded memory, model.
type LLMChain struct {
	chat         llm.ChatModel
	memory       *Memory
	systemPrompt string
}

// NewLLMChain builds the plain chat chain.
func NewLLMChain(chat llm.ChatModel, memory *Memory, systemPrompt string) *LLMChain {
	return &LLMChain{chat: chat, memory: memory, systemPrompt: systemPromptOr(systemPrompt)}
}

func (c *LLMChain) Type() Type { return TypeLLM }

// Run streams the model answer and records the turn when the stream
// completes cleanly.
func (c *LLMChain) Run(ctx context.Context, message string) (<-chan StreamChunk, error) {
	msgs := c.memory.Messages(c.systemPrompt, message)
	return streamAnswer(ctx, c.chat, msgs, c.memory, message, nil)
}

// streamAnswer starts the model stream and adapts provider deltas into chain
// frames. pre frames (e.g. sources) are emitted before the first token. The
// turn is recorded in memory only after a clean finish; an error frame ends
// the stream without recording.
func streamAnswer(ctx context.Context, chat llm.ChatModel, msgs []llm.Message, memory *Memory, userMessage string, pre []StreamChunk) (<-chan StreamChunk, error) {
	deltas, err := chat.ChatStream(ctx, llm.ChatRequest{Messages: msgs})
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)

		// Every send races ctx so an abandoned consumer (client went away)
		// never strands this goroutine on a blocked channel.
		emit := func(frame StreamChunk) bool {
			select {
			case out <- frame:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, frame := range pre {
			if !emit(frame) {
				return
			}
		}

		var answer strings.Builder
		for d := range deltas {
			if d.Err != nil {
				emit(StreamChunk{Type: "error", Error: d.Err.Error()})
				return
			}
			if d.Delta != "" {
				answer.WriteString(d.Delta)
				if !emit(StreamChunk{Type: "token", Delta: d.Delta}) {
					return
				}
			}
			if d.Done {
				break
			}
		}

		memory.AddTurn(userMessage, answer.String())
		emit(StreamChunk{Type: "done", Done: true})
	}()
	return out, nil
}
