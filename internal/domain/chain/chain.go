// Package chain holds the conversation pipelines and the orchestrator that
// owns them. A chain pairs the live chat model with a prompt strategy: plain
// chat, vault question-answering over retrieved note chunks, or the
// retrieval-augmented copilot mode with bound call options. The orchestrator
// rebuilds the single live chain whenever the active model, the chain type,
// or the global settings change.
package chain

import (
	"context"
	"errors"

	"github.com/matiasleandrokruk/notepilot/internal/domain/vault"
	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
)

// Type tags a chain variant. The tag doubles as the settings value and the
// self-healing check in Run: a live chain whose tag no longer matches the
// selected type is rebuilt before answering.
type Type string

const (
	TypeLLM         Type = "llm_chain"
	TypeVaultQA     Type = "vault_qa_chain"
	TypeCopilotPlus Type = "copilot_plus_chain"
)

// Valid reports whether t names a known chain variant.
func (t Type) Valid() bool {
	switch t {
	case TypeLLM, TypeVaultQA, TypeCopilotPlus:
		return true
	}
	return false
}

// RetrievalBased reports whether the variant consults the vault index.
func (t Type) RetrievalBased() bool {
	return t == TypeVaultQA || t == TypeCopilotPlus
}

var (
	// ErrUnsupportedChainType rejects a chain type outside the known set.
	ErrUnsupportedChainType = errors.New("chain: unsupported chain type")

	// ErrRetrievalUnavailable means a retrieval-based chain was requested
	// without an embedding model or index handle to back it.
	ErrRetrievalUnavailable = errors.New("chain: retrieval unavailable: no embedding model or vault index")
)

// SourceChunk is a retrieved citation attached to an answer.
type SourceChunk struct {
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	Method  string  `json:"method"`
}

// StreamChunk is one frame of a chain response stream. Type is one of
// "sources", "token", "system", "done", "error"; system frames carry
// orchestrator-generated messages shown in place of a model answer.
type StreamChunk struct {
	Type    string        `json:"type"`
	Delta   string        `json:"delta,omitempty"`
	Sources []SourceChunk `json:"sources,omitempty"`
	Done    bool          `json:"done,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Chain is a runnable conversation pipeline. Run streams the answer; the
// channel is closed after the done (or error) frame. Implementations record
// the completed turn in their memory only when the stream finishes cleanly.
type Chain interface {
	Type() Type
	Run(ctx context.Context, message string) (<-chan StreamChunk, error)
}

// Retriever is the orchestrator-side contract of the hybrid retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, maxResults int, minScore float64) ([]vault.Result, error)
}

// VaultIndex is the orchestrator-side contract of the vault index handle.
type VaultIndex interface {
	GetOrInitialize(ctx context.Context, embedder llm.Embedder) error
	Refresh(ctx context.Context, force bool) error
}

// minSimilarityFloor is the fixed fused-score floor for retrieval chains.
const minSimilarityFloor = 0.01

// sourcesFromResults converts retriever rows into citation chunks.
func sourcesFromResults(results []vault.Result) []SourceChunk {
	out := make([]SourceChunk, 0, len(results))
	for _, r := range results {
		out = append(out, SourceChunk{
			Title:   r.Title,
			Path:    r.NotePath,
			Snippet: r.Snippet,
			Score:   r.Score,
			Method:  string(r.Method),
		})
	}
	return out
}
