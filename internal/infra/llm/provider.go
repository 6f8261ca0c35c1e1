package llm

import "context"

// ChatModel is the capability contract for chat-completion providers.
// Adapters (OpenAI, Azure, Anthropic, Ollama, ...) implement this interface
// so the rest of the application is never coupled to a specific vendor.
type ChatModel interface {
	// Chat performs a non-streaming chat completion.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream performs a streaming chat completion. The returned channel
	// is closed after the final chunk; cancelling ctx stops the stream.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)

	// Meta returns static metadata about the provider/model.
	Meta() ModelMeta

	// HealthCheck returns nil if the provider is reachable and operational.
	HealthCheck(ctx context.Context) error
}

// Embedder is the capability contract for embedding providers.
type Embedder interface {
	// Embed computes dense vector representations for a batch of texts.
	Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error)

	// Meta returns static metadata about the provider/model.
	Meta() ModelMeta

	// HealthCheck returns nil if the provider is reachable and operational.
	HealthCheck(ctx context.Context) error
}

// ClientKind tags the variant held by a Client.
type ClientKind int

const (
	KindChat ClientKind = iota
	KindEmbedding
)

// Client is the tagged union over the two live-client variants. Exactly one
// of Chat / Embedder is non-nil, selected by Kind.
type Client struct {
	Kind     ClientKind
	Chat     ChatModel
	Embedder Embedder
}

// NewChatClient wraps a ChatModel in the union.
func NewChatClient(m ChatModel) Client {
	return Client{Kind: KindChat, Chat: m}
}

// NewEmbeddingClient wraps an Embedder in the union.
func NewEmbeddingClient(e Embedder) Client {
	return Client{Kind: KindEmbedding, Embedder: e}
}

// Meta returns the metadata of whichever variant is set.
func (c Client) Meta() ModelMeta {
	if c.Kind == KindEmbedding && c.Embedder != nil {
		return c.Embedder.Meta()
	}
	if c.Chat != nil {
		return c.Chat.Meta()
	}
	return ModelMeta{}
}
