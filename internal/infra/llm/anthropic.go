// Anthropic Messages API adapter.
// Endpoints used:
//   - POST {base}/v1/messages — chat, non-streaming and SSE streaming
//
// Anthropic differs from the OpenAI format in three ways the adapter absorbs:
// the system prompt is a top-level field, max_tokens is mandatory, and
// streaming frames are typed events rather than chat.completion chunks.
package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"

	// anthropicDefaultMaxTokens applies when neither the runtime config nor
	// the request caps the completion; the API rejects max_tokens=0.
	anthropicDefaultMaxTokens = 1024
)

// AnthropicChat implements ChatModel against the Anthropic Messages API.
type AnthropicChat struct {
	params     Params
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// NewAnthropicChat creates a chat client from resolved params.
func NewAnthropicChat(p Params) (*AnthropicChat, error) {
	if p.Model == "" {
		return nil, fmt.Errorf("anthropic: model name required")
	}
	base := p.BaseURL
	if base == "" {
		base = anthropicBaseURL
	}
	headers := map[string]string{
		headerContentType:   mimeJSON,
		"x-api-key":         p.APIKey,
		"anthropic-version": anthropicAPIVersion,
	}
	if p.ReasoningEffort != nil {
		headers[headerReasoningEffort] = strconv.Itoa(*p.ReasoningEffort)
	}
	return &AnthropicChat{
		params:     p,
		baseURL:    strings.TrimRight(base, "/"),
		headers:    headers,
		httpClient: newHTTPClient(p),
	}, nil
}

// ─── wire types ──────────────────────────────────────────────────────────────

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// buildBody splits system messages out of the turn list and applies the
// token-cap precedence: request > params > API-mandated default.
func (c *AnthropicChat) buildBody(req ChatRequest, stream bool) anthropicRequest {
	var system string
	msgs := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := c.params.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	return anthropicRequest{
		Model:       c.params.Model,
		System:      system,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: c.params.Temperature,
		Stream:      stream,
	}
}

// Chat performs a non-streaming completion via POST /v1/messages.
func (c *AnthropicChat) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	raw, err := json.Marshal(c.buildBody(req, false))
	if err != nil {
		return nil, err
	}

	respBody, err := doPost(ctx, c.httpClient, c.baseURL+"/v1/messages", c.headers, raw)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}
	defer respBody.Close()

	var resp anthropicResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&resp); decodeErr != nil {
		return nil, fmt.Errorf("anthropic chat: decode response: %w", decodeErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &ChatResponse{
		Content:    text.String(),
		StopReason: resp.StopReason,
		Tokens:     resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// ChatStream performs an SSE streaming completion, forwarding
// content_block_delta text events.
func (c *AnthropicChat) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	raw, err := json.Marshal(c.buildBody(req, true))
	if err != nil {
		return nil, err
	}

	respBody, err := doPost(ctx, c.httpClient, c.baseURL+"/v1/messages", c.headers, raw)
	if err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer respBody.Close()
		scanner := bufio.NewScanner(respBody)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, sseDataPrefix) {
				continue
			}
			var evt anthropicStreamEvent
			if jsonErr := json.Unmarshal([]byte(strings.TrimPrefix(line, sseDataPrefix)), &evt); jsonErr != nil {
				continue
			}
			switch evt.Type {
			case "content_block_delta":
				if evt.Delta.Text != "" && !emit(ctx, out, StreamChunk{Delta: evt.Delta.Text}) {
					return
				}
			case "message_stop":
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
func (c *AnthropicChat) Meta() ModelMeta {
	return ModelMeta{Model: c.params.Model, Provider: ProviderAnthropic}
}

// HealthCheck sends a minimal invalid-free request: Anthropic has no listing
// endpoint, so probe with a 1-token message.
func (c *AnthropicChat) HealthCheck(ctx context.Context) error {
	probe := ChatRequest{Messages: []Message{{Role: "user", Content: "ping"}}, MaxTokens: 1}
	_, err := c.Chat(ctx, probe)
	if err != nil {
		return fmt.Errorf("anthropic healthcheck: %w", err)
	}
	return nil
}
