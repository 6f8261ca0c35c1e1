// Package llm defines the provider-agnostic LLM abstraction: shared
// request/response types, the chat and embedding capability interfaces, and
// the registered-adapter table that maps a provider id to a constructor.
package llm

// Message represents a single turn in a conversation (role + content).
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest is the input for a chat completion (streaming or not).
type ChatRequest struct {
	Messages []Message
	// MaxTokens caps the completion length when > 0. Reasoning-class
	// models carry the cap in Params.MaxCompletionTokens instead; adapters
	// must never receive both.
	MaxTokens int
}

// ChatResponse is the output from a non-streaming chat completion.
type ChatResponse struct {
	Content    string // The assistant message text.
	StopReason string // "stop" | "length" | "error"
	Tokens     int    // Total tokens consumed (prompt + completion).
}

// StreamChunk is a single delta from a streaming chat completion.
// The channel is closed after the chunk with Done=true (or Err non-nil).
type StreamChunk struct {
	Delta string
	Done  bool
	Err   error
}

// EmbedRequest is the input for a batch embedding call.
type EmbedRequest struct {
	Texts []string
}

// EmbedResponse is the output from a batch embedding call.
// Embeddings[i] corresponds to Texts[i] in the request.
type EmbedResponse struct {
	Embeddings [][]float32
	Tokens     int // Total tokens consumed.
}

// ModelMeta describes the model / provider identity of a live client.
type ModelMeta struct {
	Model    string // e.g. "gpt-4o", "nomic-embed-text"
	Provider string // adapter table key, e.g. "openai", "ollama"
}

// Params is the fully resolved, provider-specific construction record.
// It is produced by the config-resolution layer and consumed by adapter
// constructors; identical inputs always resolve to an identical Params value,
// so constructing twice from the same settings is side-effect free.
type Params struct {
	Model    string
	Provider string
	APIKey   string
	BaseURL  string // empty → adapter default endpoint

	// Generation parameters. Nil Temperature means "provider default".
	Temperature         *float64
	MaxTokens           int
	MaxCompletionTokens int  // reasoning-class substitute for MaxTokens
	ReasoningEffort     *int // opaque 0..100 effort, reasoning-class only

	// Azure deployment indirection.
	AzureInstance   string
	AzureDeployment string
	AzureAPIVersion string

	// EnableCORS selects the alternate fetch path at construction time.
	// It is a capability toggle, never mutated on a live client.
	EnableCORS bool

	// RequestTimeoutMS bounds a single provider call when > 0.
	RequestTimeoutMS int
}
