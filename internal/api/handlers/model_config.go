package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/notepilot/internal/domain/model"
)

// ConfigService reads and merges per-model runtime overrides.
type ConfigService interface {
	GetRuntimeConfig(key string) model.RuntimeConfig
	UpdateRuntimeConfig(key string, partial model.RuntimeConfig) error
}

// ConfigHandler serves GET/PATCH /models/{key}/config. Model keys contain a
// "|" separator, so clients URL-escape the path segment; chi decodes it.
type ConfigHandler struct {
	svc ConfigService
}

func NewConfigHandler(svc ConfigService) *ConfigHandler {
	return &ConfigHandler{svc: svc}
}

// runtimeConfigPayload is the JSON shape of a runtime override document.
// All fields are pointers: absent fields are never touched by a PATCH.
type runtimeConfigPayload struct {
	Temperature         *float64 `json:"temperature,omitempty"`
	MaxTokens           *int     `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int     `json:"max_completion_tokens,omitempty"`
	ReasoningEffort     *int     `json:"reasoning_effort,omitempty"`
	ContextTurns        *int     `json:"context_turns,omitempty"`
	RequestTimeoutMS    *int     `json:"request_timeout_ms,omitempty"`
}

func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "model key is required")
		return
	}
	writeJSON(w, http.StatusOK, runtimeConfigToPayload(h.svc.GetRuntimeConfig(key)))
}

func (h *ConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "model key is required")
		return
	}

	var req runtimeConfigPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.UpdateRuntimeConfig(key, runtimeConfigFromPayload(req)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runtimeConfigToPayload(h.svc.GetRuntimeConfig(key)))
}

func runtimeConfigToPayload(rc model.RuntimeConfig) runtimeConfigPayload {
	return runtimeConfigPayload{
		Temperature:         rc.Temperature,
		MaxTokens:           rc.MaxTokens,
		MaxCompletionTokens: rc.MaxCompletionTokens,
		ReasoningEffort:     rc.ReasoningEffort,
		ContextTurns:        rc.ContextTurns,
		RequestTimeoutMS:    rc.RequestTimeoutMS,
	}
}

func runtimeConfigFromPayload(p runtimeConfigPayload) model.RuntimeConfig {
	return model.RuntimeConfig{
		Temperature:         p.Temperature,
		MaxTokens:           p.MaxTokens,
		MaxCompletionTokens: p.MaxCompletionTokens,
		ReasoningEffort:     p.ReasoningEffort,
		ContextTurns:        p.ContextTurns,
		RequestTimeoutMS:    p.RequestTimeoutMS,
	}
}
