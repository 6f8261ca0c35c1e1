// Ollama local-server adapter.
// Endpoints used:
//   - POST /api/chat        — chat completion, NDJSON when streaming
//   - POST /api/embeddings  — single text embedding (one call per text)
//   - GET  /api/tags        — health check (lists available models)
package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const ollamaBaseURL = "http://localhost:11434"

// OllamaChat implements ChatModel against a running Ollama instance.
type OllamaChat struct {
	params     Params
	baseURL    string
	httpClient *http.Client
}

// NewOllamaChat creates a chat client from resolved params. Ollama needs no
// credential; the base URL defaults to the local daemon.
func NewOllamaChat(p Params) (*OllamaChat, error) {
	if p.Model == "" {
		return nil, fmt.Errorf("ollama: model name required")
	}
	base := p.BaseURL
	if base == "" {
		base = ollamaBaseURL
	}
	return &OllamaChat{
		params:     p,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: newHTTPClient(p),
	}, nil
}

// ─── internal Ollama JSON types ──────────────────────────────────────────────

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaChatMessage `json:"message"`
	DoneReason string            `json:"done_reason"`
	Done       bool              `json:"done"`
	EvalCount  int               `json:"eval_count"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// buildChatBody converts the request and sampling params into the Ollama
// options map. Token caps of either flavor map onto num_predict.
func (c *OllamaChat) buildChatBody(req ChatRequest, stream bool) ([]byte, error) {
	msgs := make([]ollamaChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ollamaChatMessage(m)
	}

	opts := map[string]any{}
	if c.params.Temperature != nil {
		opts["temperature"] = *c.params.Temperature
	}
	maxTokens := c.params.MaxTokens
	if c.params.MaxCompletionTokens > 0 {
		maxTokens = c.params.MaxCompletionTokens
	}
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		opts["num_predict"] = maxTokens
	}
	if len(opts) == 0 {
		opts = nil
	}

	return json.Marshal(ollamaChatRequest{
		Model:    c.params.Model,
		Messages: msgs,
		Stream:   stream,
		Options:  opts,
	})
}

// Chat performs a non-streaming chat via POST /api/chat.
func (c *OllamaChat) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	raw, err := c.buildChatBody(req, false)
	if err != nil {
		return nil, err
	}

	respBody, err := doPost(ctx, c.httpClient, c.baseURL+"/api/chat", nil, raw)
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	defer respBody.Close()

	var resp ollamaChatResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&resp); decodeErr != nil {
		return nil, fmt.Errorf("ollama chat: decode response: %w", decodeErr)
	}
	return &ChatResponse{
		Content:    resp.Message.Content,
		StopReason: resp.DoneReason,
		Tokens:     resp.EvalCount,
	}, nil
}

// ChatStream performs a streaming chat via POST /api/chat. Ollama streams
// newline-delimited JSON objects, one per token batch, until done=true.
func (c *OllamaChat) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	raw, err := c.buildChatBody(req, true)
	if err != nil {
		return nil, err
	}

	respBody, err := doPost(ctx, c.httpClient, c.baseURL+"/api/chat", nil, raw)
	if err != nil {
		return nil, fmt.Errorf("ollama stream: %w", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer respBody.Close()
		scanner := bufio.NewScanner(respBody)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var resp ollamaChatResponse
			if jsonErr := json.Unmarshal([]byte(line), &resp); jsonErr != nil {
				continue
			}
			if resp.Message.Content != "" && !emit(ctx, out, StreamChunk{Delta: resp.Message.Content}) {
				return
			}
			if resp.Done {
				emit(ctx, out, StreamChunk{Done: true})
				return
			}
		}
		if scanErr := scanner.Err(); scanErr != nil {
			emit(ctx, out, StreamChunk{Err: scanErr, Done: true})
			return
		}
		emit(ctx, out, StreamChunk{Done: true})
	}()
	return out, nil
}

// Meta returns static metadata for this provider/model.
func (c *OllamaChat) Meta() ModelMeta {
	return ModelMeta{Model: c.params.Model, Provider: ProviderOllama}
}

// HealthCheck calls GET /api/tags — returns nil if Ollama is reachable.
func (c *OllamaChat) HealthCheck(ctx context.Context) error {
	return ollamaPing(ctx, c.httpClient, c.baseURL)
}

// OllamaEmbedder implements Embedder against a running Ollama instance.
type OllamaEmbedder struct {
	params     Params
	baseURL    string
	httpClient *http.Client
}

// NewOllamaEmbedder creates an embedding client from resolved params.
func NewOllamaEmbedder(p Params) (*OllamaEmbedder, error) {
	if p.Model == "" {
		return nil, fmt.Errorf("ollama: model name required")
	}
	base := p.BaseURL
	if base == "" {
		base = ollamaBaseURL
	}
	return &OllamaEmbedder{
		params:     p,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: newHTTPClient(p),
	}, nil
}

// Embed computes embeddings for each text via POST /api/embeddings — one call
// per text, since Ollama does not support batch embeddings in a single call.
func (e *OllamaEmbedder) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return &EmbedResponse{Embeddings: [][]float32{}}, nil
	}

	embeddings := make([][]float32, 0, len(req.Texts))
	for _, text := range req.Texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}
		embeddings = append(embeddings, vec)
	}
	return &EmbedResponse{Embeddings: embeddings}, nil
}

// embedOne sends a single /api/embeddings call and returns the vector.
func (e *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	raw, err := json.Marshal(ollamaEmbedRequest{Model: e.params.Model, Prompt: text})
	if err != nil {
		return nil, err
	}

	respBody, postErr := doPost(ctx, e.httpClient, e.baseURL+"/api/embeddings", nil, raw)
	if postErr != nil {
		return nil, postErr
	}
	defer respBody.Close()

	var resp ollamaEmbedResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&resp); decodeErr != nil {
		return nil, fmt.Errorf("decode embed response: %w", decodeErr)
	}
	return resp.Embedding, nil
}

// Meta returns static metadata for this provider/model.
func (e *OllamaEmbedder) Meta() ModelMeta {
	return ModelMeta{Model: e.params.Model, Provider: ProviderOllama}
}

// HealthCheck calls GET /api/tags — returns nil if Ollama is reachable.
func (e *OllamaEmbedder) HealthCheck(ctx context.Context) error {
	return ollamaPing(ctx, e.httpClient, e.baseURL)
}

func ollamaPing(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama healthcheck: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama healthcheck: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama healthcheck: status %d", resp.StatusCode)
	}
	return nil
}
