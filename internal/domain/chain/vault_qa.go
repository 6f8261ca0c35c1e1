package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
)

// VaultQAChain answers questions over the note vault: retrieve, cite, then
// generate. Retrieved chunks are kept on the chain so the caller can render
// citations after the stream ends.
type VaultQAChain struct {
	chat            llm.ChatModel
	retriever       Retriever
	memory          *Memory
	systemPrompt    string
	maxSourceChunks int

	mu          sync.Mutex
	lastSources []SourceChunk
}

// NewVaultQAChain builds the vault question-answering chain.
func NewVaultQAChain(chat llm.ChatModel, retriever Retriever, memory *Memory, systemPrompt string, maxSourceChunks int) *VaultQAChain {
	return &VaultQAChain{
		chat:            chat,
		retriever:       retriever,
		memory:          memory,
		systemPrompt:    systemPromptOr(systemPrompt),
		maxSourceChunks: maxSourceChunks,
	}
}

func (c *VaultQAChain) Type() Type { return TypeVaultQA }

// LastSources returns the citations retrieved by the most recent Run.
func (c *VaultQAChain) LastSources() []SourceChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SourceChunk(nil), c.lastSources...)
}

// Run retrieves supporting chunks, emits them as the first frame, then
// streams the grounded answer.
func (c *VaultQAChain) Run(ctx context.Context, message string) (<-chan StreamChunk, error) {
	results, err := c.retriever.Retrieve(ctx, message, c.maxSourceChunks, minSimilarityFloor)
	if err != nil {
		return nil, fmt.Errorf("chain: vault qa retrieve: %w", err)
	}
	sources := sourcesFromResults(results)

	c.mu.Lock()
	c.lastSources = sources
	c.mu.Unlock()

	msgs := c.memory.Messages(c.systemPrompt, buildQAPrompt(message, sources))
	pre := []StreamChunk{{Type: "sources", Sources: sources}}
	return streamAnswer(ctx, c.chat, msgs, c.memory, message, pre)
}
