// Azure OpenAI adapter. Azure serves the OpenAI wire format but addresses a
// *deployment* rather than a model, authenticated with an api-key header:
//
//	https://{instance}.openai.azure.com/openai/deployments/{deployment}/...?api-version={v}
//
// The adapter reuses the OpenAI chat/embedding wire types and differs only in
// endpoint construction and auth.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultAzureAPIVersion = "2024-06-01"

// azureEndpoint builds the operation URL for a deployment.
func azureEndpoint(p Params, operation string) (string, error) {
	if p.AzureInstance == "" {
		return "", fmt.Errorf("azure_openai: instance name required")
	}
	if p.AzureDeployment == "" {
		return "", fmt.Errorf("azure_openai: deployment name required")
	}
	version := p.AzureAPIVersion
	if version == "" {
		version = defaultAzureAPIVersion
	}
	return fmt.Sprintf("https://%s.openai.azure.com/openai/deployments/%s/%s?api-version=%s",
		p.AzureInstance, p.AzureDeployment, operation, version), nil
}

func azureHeaders(p Params) map[string]string {
	h := map[string]string{headerContentType: mimeJSON, "api-key": p.APIKey}
	if p.ReasoningEffort != nil {
		h[headerReasoningEffort] = fmt.Sprintf("%d", *p.ReasoningEffort)
	}
	return h
}

// AzureChat implements ChatModel against an Azure OpenAI deployment.
type AzureChat struct {
	inner    *OpenAIChat
	endpoint string
}

// NewAzureChat creates a chat client bound to one deployment.
func NewAzureChat(p Params) (*AzureChat, error) {
	endpoint, err := azureEndpoint(p, "chat/completions")
	if err != nil {
		return nil, err
	}
	inner := &OpenAIChat{
		params:     p,
		headers:    azureHeaders(p),
		httpClient: newHTTPClient(p),
	}
	return &AzureChat{inner: inner, endpoint: endpoint}, nil
}

// Chat performs a non-streaming completion against the deployment endpoint.
func (c *AzureChat) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	raw, err := json.Marshal(c.inner.buildChatBody(req, false))
	if err != nil {
		return nil, err
	}
	respBody, err := doPost(ctx, c.inner.httpClient, c.endpoint, c.inner.headers, raw)
	if err != nil {
		return nil, fmt.Errorf("azure chat: %w", err)
	}
	defer respBody.Close()

	var resp openAIChatResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&resp); decodeErr != nil {
		return nil, fmt.Errorf("azure chat: decode response: %w", decodeErr)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("azure chat: empty choices")
	}
	return &ChatResponse{
		Content:    resp.Choices[0].Message.Content,
		StopReason: resp.Choices[0].FinishReason,
		Tokens:     resp.Usage.TotalTokens,
	}, nil
}

// ChatStream performs an SSE streaming completion. Azure streams the same
// frame format as OpenAI, so delegate to the shared reader via the endpoint.
func (c *AzureChat) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	raw, err := json.Marshal(c.inner.buildChatBody(req, true))
	if err != nil {
		return nil, err
	}
	respBody, err := doPost(ctx, c.inner.httpClient, c.endpoint, c.inner.headers, raw)
	if err != nil {
		return nil, fmt.Errorf("azure stream: %w", err)
	}
	return readSSEStream(ctx, respBody), nil
}

// Meta returns static metadata; Model carries the logical model name, not the
// deployment name.
func (c *AzureChat) Meta() ModelMeta {
	return ModelMeta{Model: c.inner.params.Model, Provider: ProviderAzure}
}

// HealthCheck probes the deployment with a zero-length GET; Azure has no
// /models listing per deployment, so a HEAD-style request to the chat
// endpoint (which answers 405/400 when alive) is treated as reachable.
func (c *AzureChat) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("azure healthcheck: build request: %w", err)
	}
	for k, v := range c.inner.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.inner.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("azure healthcheck: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("azure healthcheck: status %d", resp.StatusCode)
	}
	return nil
}

// AzureEmbedder implements Embedder against an Azure OpenAI deployment.
type AzureEmbedder struct {
	inner    *OpenAIEmbedder
	endpoint string
}

// NewAzureEmbedder creates an embedding client bound to one deployment.
func NewAzureEmbedder(p Params) (*AzureEmbedder, error) {
	endpoint, err := azureEndpoint(p, "embeddings")
	if err != nil {
		return nil, err
	}
	inner := &OpenAIEmbedder{
		params:     p,
		headers:    azureHeaders(p),
		httpClient: newHTTPClient(p),
	}
	return &AzureEmbedder{inner: inner, endpoint: endpoint}, nil
}

// Embed computes embeddings for the batch in a single call.
func (e *AzureEmbedder) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return &EmbedResponse{Embeddings: [][]float32{}}, nil
	}
	raw, err := json.Marshal(openAIEmbedRequest{Model: e.inner.params.Model, Input: req.Texts})
	if err != nil {
		return nil, err
	}
	respBody, err := doPost(ctx, e.inner.httpClient, e.endpoint, e.inner.headers, raw)
	if err != nil {
		return nil, fmt.Errorf("azure embed: %w", err)
	}
	defer respBody.Close()

	var resp openAIEmbedResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&resp); decodeErr != nil {
		return nil, fmt.Errorf("azure embed: decode response: %w", decodeErr)
	}
	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return &EmbedResponse{Embeddings: vecs, Tokens: resp.Usage.TotalTokens}, nil
}

// Meta returns static metadata for this deployment.
func (e *AzureEmbedder) Meta() ModelMeta {
	return ModelMeta{Model: e.inner.params.Model, Provider: ProviderAzure}
}

// HealthCheck reuses the chat probe semantics against the embed endpoint.
func (e *AzureEmbedder) HealthCheck(ctx context.Context) error {
	probe := &AzureChat{inner: &OpenAIChat{params: e.inner.params, headers: e.inner.headers, httpClient: e.inner.httpClient}, endpoint: e.endpoint}
	return probe.HealthCheck(ctx)
}
