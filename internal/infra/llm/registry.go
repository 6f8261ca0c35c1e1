package llm

import (
	"fmt"
	"sort"
	"sync"
)

// LocalCredential is the sentinel credential resolved for providers that
// have no notion of an API key, so presence checks still succeed. Adapters
// never send it on the wire.
const LocalCredential = "local"

// Provider identifiers — adapter table keys.
const (
	ProviderOpenAI     = "openai"
	ProviderAzure      = "azure_openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderLMStudio   = "lm_studio"
)

// ChatCtor builds a live chat client from resolved params.
type ChatCtor func(p Params) (ChatModel, error)

// EmbedderCtor builds a live embedding client from resolved params.
type EmbedderCtor func(p Params) (Embedder, error)

// AdapterSet is the registered-adapter table: provider id → constructor.
// New providers are added by registration, never by editing a dispatcher
// switch. A provider may register either capability or both.
type AdapterSet struct {
	mu    sync.RWMutex
	chat  map[string]ChatCtor
	embed map[string]EmbedderCtor
	local map[string]bool // providers with no notion of credential
}

// NewAdapterSet returns an empty table.
func NewAdapterSet() *AdapterSet {
	return &AdapterSet{
		chat:  make(map[string]ChatCtor),
		embed: make(map[string]EmbedderCtor),
		local: make(map[string]bool),
	}
}

// DefaultAdapters returns the table with every built-in adapter registered.
func DefaultAdapters() *AdapterSet {
	s := NewAdapterSet()

	s.RegisterChat(ProviderOpenAI, func(p Params) (ChatModel, error) { return NewOpenAIChat(p) })
	s.RegisterEmbedder(ProviderOpenAI, func(p Params) (Embedder, error) { return NewOpenAIEmbedder(p) })

	// OpenRouter speaks the OpenAI wire format on its own endpoint.
	s.RegisterChat(ProviderOpenRouter, func(p Params) (ChatModel, error) {
		if p.BaseURL == "" {
			p.BaseURL = openRouterBaseURL
		}
		return NewOpenAIChat(p)
	})

	s.RegisterChat(ProviderAzure, func(p Params) (ChatModel, error) { return NewAzureChat(p) })
	s.RegisterEmbedder(ProviderAzure, func(p Params) (Embedder, error) { return NewAzureEmbedder(p) })

	s.RegisterChat(ProviderAnthropic, func(p Params) (ChatModel, error) { return NewAnthropicChat(p) })

	s.RegisterChat(ProviderOllama, func(p Params) (ChatModel, error) { return NewOllamaChat(p) })
	s.RegisterEmbedder(ProviderOllama, func(p Params) (Embedder, error) { return NewOllamaEmbedder(p) })
	s.MarkLocal(ProviderOllama)

	// LM Studio serves the OpenAI wire format locally, no credential.
	s.RegisterChat(ProviderLMStudio, func(p Params) (ChatModel, error) {
		if p.BaseURL == "" {
			p.BaseURL = lmStudioBaseURL
		}
		return NewOpenAIChat(p)
	})
	s.MarkLocal(ProviderLMStudio)

	return s
}

// RegisterChat adds (or replaces) the chat constructor for provider.
func (s *AdapterSet) RegisterChat(provider string, ctor ChatCtor) {
	s.mu.Lock()
	s.chat[provider] = ctor
	s.mu.Unlock()
}

// RegisterEmbedder adds (or replaces) the embedding constructor for provider.
func (s *AdapterSet) RegisterEmbedder(provider string, ctor EmbedderCtor) {
	s.mu.Lock()
	s.embed[provider] = ctor
	s.mu.Unlock()
}

// MarkLocal flags a provider as credential-free (pure local).
func (s *AdapterSet) MarkLocal(provider string) {
	s.mu.Lock()
	s.local[provider] = true
	s.mu.Unlock()
}

// IsLocal reports whether provider has no notion of credential.
func (s *AdapterSet) IsLocal(provider string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local[provider]
}

// HasChat reports whether a chat constructor is registered for provider.
func (s *AdapterSet) HasChat(provider string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chat[provider]
	return ok
}

// HasEmbedder reports whether an embedding constructor is registered.
func (s *AdapterSet) HasEmbedder(provider string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.embed[provider]
	return ok
}

// NewChat constructs a live chat client for provider from resolved params.
func (s *AdapterSet) NewChat(provider string, p Params) (ChatModel, error) {
	s.mu.RLock()
	ctor, ok := s.chat[provider]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: no chat adapter registered for provider %q (available: %v)", provider, s.chatProviders())
	}
	return ctor(p)
}

// NewEmbedder constructs a live embedding client for provider.
func (s *AdapterSet) NewEmbedder(provider string, p Params) (Embedder, error) {
	s.mu.RLock()
	ctor, ok := s.embed[provider]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: no embedding adapter registered for provider %q", provider)
	}
	return ctor(p)
}

// chatProviders returns the registered chat provider ids (for error messages).
func (s *AdapterSet) chatProviders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.chat))
	for k := range s.chat {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
