// OpenAI-compatible adapter. Serves the "openai" provider directly and, via
// endpoint overrides in the adapter table, "openrouter" and "lm_studio".
// Endpoints used:
//   - POST {base}/chat/completions — chat, non-streaming and SSE streaming
//   - POST {base}/embeddings      — batch embeddings
//   - GET  {base}/models          — health check
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	lmStudioBaseURL   = "http://localhost:1234/v1"

	mimeJSON          = "application/json"
	headerContentType = "Content-Type"

	// headerReasoningEffort carries the opaque effort value for
	// reasoning-class models in place of a temperature parameter.
	headerReasoningEffort = "X-Reasoning-Effort"

	sseDataPrefix = "data: "
	sseDoneMarker = "[DONE]"
)

// OpenAIChat implements ChatModel against an OpenAI-compatible endpoint.
type OpenAIChat struct {
	params     Params
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// NewOpenAIChat creates a chat client from resolved params.
func NewOpenAIChat(p Params) (*OpenAIChat, error) {
	if p.Model == "" {
		return nil, fmt.Errorf("openai: model name required")
	}
	base := p.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	c := &OpenAIChat{
		params:     p,
		baseURL:    strings.TrimRight(base, "/"),
		headers:    bearerHeaders(p),
		httpClient: newHTTPClient(p),
	}
	return c, nil
}

// bearerHeaders builds the auth + effort headers shared by the OpenAI-format
// adapters. Local endpoints may run keyless; the header is simply omitted.
func bearerHeaders(p Params) map[string]string {
	h := map[string]string{headerContentType: mimeJSON}
	if p.APIKey != "" && p.APIKey != LocalCredential {
		h["Authorization"] = "Bearer " + p.APIKey
	}
	if p.ReasoningEffort != nil {
		h[headerReasoningEffort] = strconv.Itoa(*p.ReasoningEffort)
	}
	return h
}

// ─── wire types ──────────────────────────────────────────────────────────────

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model               string              `json:"model"`
	Messages            []openAIChatMessage `json:"messages"`
	Temperature         *float64            `json:"temperature,omitempty"`
	MaxTokens           int                 `json:"max_tokens,omitempty"`
	MaxCompletionTokens int                 `json:"max_completion_tokens,omitempty"`
	Stream              bool                `json:"stream,omitempty"`
}

type openAIChatChoice struct {
	Message      openAIChatMessage `json:"message"`
	Delta        openAIChatMessage `json:"delta"`
	FinishReason string            `json:"finish_reason"`
}

type openAIChatResponse struct {
	Choices []openAIChatChoice `json:"choices"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// buildChatBody maps a ChatRequest plus the construction params onto the wire
// request. MaxCompletionTokens and MaxTokens are mutually exclusive by
// contract; the resolution layer guarantees only one is set.
func (c *OpenAIChat) buildChatBody(req ChatRequest, stream bool) openAIChatRequest {
	msgs := make([]openAIChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openAIChatMessage(m)
	}

	body := openAIChatRequest{
		Model:               c.params.Model,
		Messages:            msgs,
		Temperature:         c.params.Temperature,
		MaxCompletionTokens: c.params.MaxCompletionTokens,
		Stream:              stream,
	}
	if body.MaxCompletionTokens == 0 {
		body.MaxTokens = c.params.MaxTokens
		if req.MaxTokens > 0 {
			body.MaxTokens = req.MaxTokens
		}
	}
	return body
}

// Chat performs a non-streaming completion via POST /chat/completions.
func (c *OpenAIChat) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	raw, err := json.Marshal(c.buildChatBody(req, false))
	if err != nil {
		return nil, err
	}

	respBody, err := doPost(ctx, c.httpClient, c.baseURL+"/chat/completions", c.headers, raw)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	defer respBody.Close()

	var resp openAIChatResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&resp); decodeErr != nil {
		return nil, fmt.Errorf("openai chat: decode response: %w", decodeErr)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat: empty choices")
	}
	return &ChatResponse{
		Content:    resp.Choices[0].Message.Content,
		StopReason: resp.Choices[0].FinishReason,
		Tokens:     resp.Usage.TotalTokens,
	}, nil
}

// ChatStream performs an SSE streaming completion. Chunks are delivered until
// the provider sends [DONE], the stream errors, or ctx is cancelled.
func (c *OpenAIChat) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	raw, err := json.Marshal(c.buildChatBody(req, true))
	if err != nil {
		return nil, err
	}

	respBody, err := doPost(ctx, c.httpClient, c.baseURL+"/chat/completions", c.headers, raw)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	return readSSEStream(ctx, respBody), nil
}

// readSSEStream consumes an OpenAI-format SSE body and forwards content
// deltas as StreamChunks. Shared with the Azure adapter (same frame format).
func readSSEStream(ctx context.Context, body io.ReadCloser) <-chan StreamChunk {
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer body.Close()
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, sseDataPrefix) {
				continue
			}
			payload := strings.TrimPrefix(line, sseDataPrefix)
			if payload == sseDoneMarker {
				emit(ctx, out, StreamChunk{Done: true})
				return
			}
			var evt openAIChatResponse
			if jsonErr := json.Unmarshal([]byte(payload), &evt); jsonErr != nil {
				continue // skip malformed keep-alive frames
			}
			if len(evt.Choices) == 0 {
				continue
			}
			if delta := evt.Choices[0].Delta.Content; delta != "" {
				if !emit(ctx, out, StreamChunk{Delta: delta}) {
					return
				}
			}
		}
		if scanErr := scanner.Err(); scanErr != nil {
			emit(ctx, out, StreamChunk{Err: scanErr, Done: true})
			return
		}
		emit(ctx, out, StreamChunk{Done: true})
	}()
	return out
}

// Meta returns static metadata for this provider/model.
func (c *OpenAIChat) Meta() ModelMeta {
	return ModelMeta{Model: c.params.Model, Provider: c.params.Provider}
}

// HealthCheck calls GET /models — returns nil if the endpoint is reachable.
func (c *OpenAIChat) HealthCheck(ctx context.Context) error {
	return doGet(ctx, c.httpClient, c.baseURL+"/models", c.headers)
}

// ─── embeddings ──────────────────────────────────────────────────────────────

// OpenAIEmbedder implements Embedder against POST /embeddings.
type OpenAIEmbedder struct {
	params     Params
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// NewOpenAIEmbedder creates an embedding client from resolved params.
func NewOpenAIEmbedder(p Params) (*OpenAIEmbedder, error) {
	if p.Model == "" {
		return nil, fmt.Errorf("openai: embedding model name required")
	}
	base := p.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	return &OpenAIEmbedder{
		params:     p,
		baseURL:    strings.TrimRight(base, "/"),
		headers:    bearerHeaders(p),
		httpClient: newHTTPClient(p),
	}, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed computes embeddings for the batch in a single call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return &EmbedResponse{Embeddings: [][]float32{}}, nil
	}

	raw, err := json.Marshal(openAIEmbedRequest{Model: e.params.Model, Input: req.Texts})
	if err != nil {
		return nil, err
	}

	respBody, err := doPost(ctx, e.httpClient, e.baseURL+"/embeddings", e.headers, raw)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	defer respBody.Close()

	var resp openAIEmbedResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&resp); decodeErr != nil {
		return nil, fmt.Errorf("openai embed: decode response: %w", decodeErr)
	}

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return &EmbedResponse{Embeddings: vecs, Tokens: resp.Usage.TotalTokens}, nil
}

// Meta returns static metadata for this provider/model.
func (e *OpenAIEmbedder) Meta() ModelMeta {
	return ModelMeta{Model: e.params.Model, Provider: e.params.Provider}
}

// HealthCheck calls GET /models.
func (e *OpenAIEmbedder) HealthCheck(ctx context.Context) error {
	return doGet(ctx, e.httpClient, e.baseURL+"/models", e.headers)
}

// ─── shared HTTP helpers ─────────────────────────────────────────────────────

// doPost sends a POST and returns the response body. Non-2xx responses are
// drained for the provider's error message. Caller closes the ReadCloser.
func doPost(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close() //nolint:errcheck
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// doGet sends a GET, drains the body, and maps non-2xx to an error.
func doGet(ctx context.Context, client *http.Client, url string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return nil
}

// statusError extracts the provider error message when the body carries one.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	var payload openAIErrorResponse
	if json.Unmarshal(raw, &payload) == nil && payload.Error.Message != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, payload.Error.Message)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

// emit sends a chunk unless ctx is done; reports whether the send happened.
func emit(ctx context.Context, out chan<- StreamChunk, c StreamChunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
