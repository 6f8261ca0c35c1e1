package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matiasleandrokruk/notepilot/internal/domain/model"
	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
)

// defaultCopilotTimeoutMS bounds copilot requests when the runtime config
// does not set a timeout.
const defaultCopilotTimeoutMS = 30_000

// CopilotPlusChain is the retrieval-augmented mode with bound call options:
// the same vault bootstrap as VaultQA plus a hard per-request deadline.
// Reasoning-class handling (temperature pinning, the effort header) lives in
// the resolved provider params; the chain only owns the deadline.
type CopilotPlusChain struct {
	chat            llm.ChatModel
	retriever       Retriever
	memory          *Memory
	systemPrompt    string
	maxSourceChunks int
	timeout         time.Duration

	mu          sync.Mutex
	lastSources []SourceChunk
}

// NewCopilotPlusChain builds the copilot chain. timeoutMS must be inside
// [1, 120000]; 0 selects the default. The bound is enforced here so a bad
// value fails construction, never a live request.
func NewCopilotPlusChain(chat llm.ChatModel, retriever Retriever, memory *Memory, systemPrompt string, maxSourceChunks, timeoutMS int) (*CopilotPlusChain, error) {
	if timeoutMS == 0 {
		timeoutMS = defaultCopilotTimeoutMS
	}
	if timeoutMS < model.MinRequestTimeoutMS || timeoutMS > model.MaxRequestTimeoutMS {
		return nil, &model.ValidationError{
			Field:  "request_timeout_ms",
			Value:  timeoutMS,
			Reason: fmt.Sprintf("must be within [%d, %d]", model.MinRequestTimeoutMS, model.MaxRequestTimeoutMS),
		}
	}
	return &CopilotPlusChain{
		chat:            chat,
		retriever:       retriever,
		memory:          memory,
		systemPrompt:    systemPromptOr(systemPrompt),
		maxSourceChunks: maxSourceChunks,
		timeout:         time.Duration(timeoutMS) * time.Millisecond,
	}, nil
}

func (c *CopilotPlusChain) Type() Type { return TypeCopilotPlus }

// LastSources returns the citations retrieved by the most recent Run.
func (c *CopilotPlusChain) LastSources() []SourceChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SourceChunk(nil), c.lastSources...)
}

// Run retrieves chunks and streams the answer under the bound deadline.
func (c *CopilotPlusChain) Run(ctx context.Context, message string) (<-chan StreamChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	results, err := c.retriever.Retrieve(ctx, message, c.maxSourceChunks, minSimilarityFloor)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("chain: copilot retrieve: %w", err)
	}
	sources := sourcesFromResults(results)

	c.mu.Lock()
	c.lastSources = sources
	c.mu.Unlock()

	msgs := c.memory.Messages(c.systemPrompt, buildQAPrompt(message, sources))
	pre := []StreamChunk{{Type: "sources", Sources: sources}}
	out, err := streamAnswer(ctx, c.chat, msgs, c.memory, message, pre)
	if err != nil {
		cancel()
		return nil, err
	}

	// Release the deadline once the stream drains. The send races ctx so an
	// abandoned consumer cannot strand the relay (and the deferred cancel).
	relay := make(chan StreamChunk)
	go func() {
		defer cancel()
		defer close(relay)
		for frame := range out {
			select {
			case relay <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return relay, nil
}
