// Unit tests for the OpenAI-compatible adapter.
// Uses httptest.NewServer to mock the API — no real provider needed.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Compile-time interface checks.
var (
	_ ChatModel = (*OpenAIChat)(nil)
	_ Embedder  = (*OpenAIEmbedder)(nil)
	_ ChatModel = (*AzureChat)(nil)
	_ Embedder  = (*AzureEmbedder)(nil)
	_ ChatModel = (*AnthropicChat)(nil)
	_ ChatModel = (*OllamaChat)(nil)
	_ Embedder  = (*OllamaEmbedder)(nil)
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// ============================================================================
// Chat tests
// ============================================================================

func TestOpenAIChat_Chat_Success(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			http.Error(w, "unexpected path", http.StatusNotFound)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody) //nolint:errcheck
		w.Header().Set(headerContentType, mimeJSON)
		json.NewEncoder(w).Encode(openAIChatResponse{ //nolint:errcheck
			Choices: []openAIChatChoice{{
				Message:      openAIChatMessage{Role: "assistant", Content: "Hello there"},
				FinishReason: "stop",
			}},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAIChat(Params{Model: "gpt-4.1", APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIChat failed: %v", err)
	}
	resp, err := c.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello there" {
		t.Errorf("expected content %q, got %q", "Hello there", resp.Content)
	}
	if resp.StopReason != "stop" {
		t.Errorf("expected stop reason %q, got %q", "stop", resp.StopReason)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if gotBody.Model != "gpt-4.1" {
		t.Errorf("expected model gpt-4.1 on the wire, got %q", gotBody.Model)
	}
}

func TestOpenAIChat_Chat_ReasoningParams_UsesCompletionTokenCap(t *testing.T) {
	t.Parallel()

	var raw map[string]any
	var gotEffort string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEffort = r.Header.Get(headerReasoningEffort)
		json.NewDecoder(r.Body).Decode(&raw) //nolint:errcheck
		w.Header().Set(headerContentType, mimeJSON)
		json.NewEncoder(w).Encode(openAIChatResponse{ //nolint:errcheck
			Choices: []openAIChatChoice{{Message: openAIChatMessage{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAIChat(Params{
		Model:               "o1-preview",
		APIKey:              "sk-test",
		BaseURL:             srv.URL,
		Temperature:         floatPtr(1),
		MaxCompletionTokens: 2048,
		ReasoningEffort:     intPtr(40),
	})
	if err != nil {
		t.Fatalf("NewOpenAIChat failed: %v", err)
	}
	if _, chatErr := c.Chat(context.Background(), ChatRequest{
		Messages:  []Message{{Role: "user", Content: "hi"}},
		MaxTokens: 99, // must not leak into max_tokens alongside the completion cap
	}); chatErr != nil {
		t.Fatalf("Chat failed: %v", chatErr)
	}

	if _, present := raw["max_tokens"]; present {
		t.Error("max_tokens must be absent when max_completion_tokens is set")
	}
	if got := raw["max_completion_tokens"]; got != float64(2048) {
		t.Errorf("expected max_completion_tokens 2048, got %v", got)
	}
	if got := raw["temperature"]; got != float64(1) {
		t.Errorf("expected temperature 1, got %v", got)
	}
	if gotEffort != "40" {
		t.Errorf("expected effort header 40, got %q", gotEffort)
	}
}

func TestOpenAIChat_Chat_LocalCredential_OmitsAuthHeader(t *testing.T) {
	t.Parallel()

	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		w.Header().Set(headerContentType, mimeJSON)
		json.NewEncoder(w).Encode(openAIChatResponse{ //nolint:errcheck
			Choices: []openAIChatChoice{{Message: openAIChatMessage{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAIChat(Params{Model: "qwen2.5", APIKey: LocalCredential, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIChat failed: %v", err)
	}
	if _, chatErr := c.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}}); chatErr != nil {
		t.Fatalf("Chat failed: %v", chatErr)
	}
	if sawAuth {
		t.Error("local credential must not produce an Authorization header")
	}
}

func TestOpenAIChat_Chat_ProviderError_SurfacesMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerContentType, mimeJSON)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided"}}`) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewOpenAIChat(Params{Model: "gpt-4.1", APIKey: "sk-bad", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIChat failed: %v", err)
	}
	_, chatErr := c.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if chatErr == nil {
		t.Fatal("expected error for 401 response, got nil")
	}
	if !strings.Contains(chatErr.Error(), "Incorrect API key provided") {
		t.Errorf("expected provider message in error, got %q", chatErr.Error())
	}
}

func TestOpenAIChat_NewOpenAIChat_MissingModel_ReturnsError(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIChat(Params{APIKey: "sk-test"}); err == nil {
		t.Error("expected error for missing model name, got nil")
	}
}

// ============================================================================
// Streaming tests
// ============================================================================

func TestOpenAIChat_ChatStream_EmitsDeltasThenDone(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerContentType, "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")    //nolint:errcheck
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")     //nolint:errcheck
		fmt.Fprint(w, ": keep-alive comment frame, must be ignored\n\n")                //nolint:errcheck
		fmt.Fprint(w, "data: [DONE]\n\n")                                               //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewOpenAIChat(Params{Model: "gpt-4.1", APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIChat failed: %v", err)
	}
	ch, err := c.ChatStream(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	var text strings.Builder
	var done bool
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
		text.WriteString(chunk.Delta)
		done = chunk.Done
	}
	if text.String() != "Hello" {
		t.Errorf("expected streamed text %q, got %q", "Hello", text.String())
	}
	if !done {
		t.Error("expected final chunk with Done=true")
	}
}

func TestOpenAIChat_ChatStream_ContextCancel_StopsStream(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerContentType, "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n") //nolint:errcheck
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c, err := NewOpenAIChat(Params{Model: "gpt-4.1", APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIChat failed: %v", err)
	}
	ch, err := c.ChatStream(ctx, ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	<-started
	cancel()
	for range ch { //nolint:revive // drain until the producer closes
	}
}

// ============================================================================
// Embedding tests
// ============================================================================

func TestOpenAIEmbedder_Embed_Batch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" || r.Method != http.MethodPost {
			http.Error(w, "unexpected path", http.StatusNotFound)
			return
		}
		w.Header().Set(headerContentType, mimeJSON)
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2]},{"embedding":[0.3,0.4]}],"usage":{"total_tokens":8}}`) //nolint:errcheck
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(Params{Model: "text-embedding-3-small", APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder failed: %v", err)
	}
	resp, err := e.Embed(context.Background(), EmbedRequest{Texts: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(resp.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(resp.Embeddings))
	}
	if resp.Embeddings[1][0] != 0.3 {
		t.Errorf("expected second vector to start 0.3, got %v", resp.Embeddings[1][0])
	}
	if resp.Tokens != 8 {
		t.Errorf("expected 8 tokens, got %d", resp.Tokens)
	}
}

// ============================================================================
// Health check and transport tests
// ============================================================================

func TestOpenAIChat_HealthCheck(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			fmt.Fprint(w, `{"data":[]}`) //nolint:errcheck
			return
		}
		http.Error(w, "unexpected path", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewOpenAIChat(Params{Model: "gpt-4.1", APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIChat failed: %v", err)
	}
	if hcErr := c.HealthCheck(context.Background()); hcErr != nil {
		t.Errorf("expected healthy, got %v", hcErr)
	}
}

func TestCORSBypassTransport_StripsBrowserHeaders(t *testing.T) {
	t.Parallel()

	var gotOrigin, gotXRW string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrigin = r.Header.Get("Origin")
		gotXRW = r.Header.Get("X-Requested-With")
		w.Header().Set(headerContentType, mimeJSON)
		json.NewEncoder(w).Encode(openAIChatResponse{ //nolint:errcheck
			Choices: []openAIChatChoice{{Message: openAIChatMessage{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAIChat(Params{Model: "gpt-4.1", APIKey: "sk-test", BaseURL: srv.URL, EnableCORS: true})
	if err != nil {
		t.Fatalf("NewOpenAIChat failed: %v", err)
	}
	if _, chatErr := c.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}}); chatErr != nil {
		t.Fatalf("Chat failed: %v", chatErr)
	}
	if gotOrigin != "" {
		t.Errorf("expected Origin stripped, got %q", gotOrigin)
	}
	if gotXRW != "XMLHttpRequest" {
		t.Errorf("expected X-Requested-With set, got %q", gotXRW)
	}
}
