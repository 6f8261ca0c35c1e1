package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/matiasleandrokruk/notepilot/internal/domain/model"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// Model kinds accepted by the ping and activate endpoints.
const (
	kindChat      = "chat"
	kindEmbedding = "embedding"
)

// ModelService activates and probes configured models.
type ModelService interface {
	ActivateModel(key string) error
	ActivateEmbeddingModel(key string) error
	PingModel(ctx context.Context, d model.Descriptor) (bool, error)
	PingEmbeddingModel(ctx context.Context, d model.Descriptor) (bool, error)
}

// ModelsHandler serves the model catalog endpoints.
type ModelsHandler struct {
	svc    ModelService
	chats  *model.ChatRegistry
	embeds *model.EmbeddingRegistry
	store  *settings.Store
}

func NewModelsHandler(svc ModelService, chats *model.ChatRegistry, embeds *model.EmbeddingRegistry, store *settings.Store) *ModelsHandler {
	return &ModelsHandler{svc: svc, chats: chats, embeds: embeds, store: store}
}

type modelSummary struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	Kind          string `json:"kind"`
	EnableCORS    bool   `json:"enable_cors"`
	BuiltIn       bool   `json:"built_in"`
	HasCredential bool   `json:"has_credential"`
	Active        bool   `json:"active"`
}

// ListModels returns all registered models. The optional ?kind= query param
// narrows the result to chat or embedding entries.
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != kindChat && kind != kindEmbedding {
		writeError(w, http.StatusBadRequest, "kind must be chat or embedding")
		return
	}

	var out []modelSummary
	if kind == "" || kind == kindChat {
		_, current := h.chats.Current()
		out = append(out, summarize(h.chats.Entries(), kindChat, current)...)
	}
	if kind == "" || kind == kindEmbedding {
		_, current := h.embeds.Current()
		out = append(out, summarize(h.embeds.Entries(), kindEmbedding, current)...)
	}

	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

// summarize flattens a registry entry map into a stable, key-sorted list.
func summarize(entries map[string]model.Entry, kind, currentKey string) []modelSummary {
	out := make([]modelSummary, 0, len(entries))
	for key, e := range entries {
		out = append(out, modelSummary{
			Key:           key,
			Name:          e.Descriptor.Name,
			Provider:      e.Descriptor.Provider,
			Kind:          kind,
			EnableCORS:    e.Descriptor.EnableCORS,
			BuiltIn:       e.Descriptor.IsBuiltIn,
			HasCredential: e.HasCredential,
			Active:        key == currentKey,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

type modelKeyRequest struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
}

// decodeModelKeyRequest parses and validates the shared {key, kind} body.
// Kind defaults to chat when omitted.
func decodeModelKeyRequest(r *http.Request) (modelKeyRequest, bool) {
	var req modelKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, false
	}
	if req.Kind == "" {
		req.Kind = kindChat
	}
	if req.Key == "" || (req.Kind != kindChat && req.Kind != kindEmbedding) {
		return req, false
	}
	return req, true
}

// PingModel probes connectivity for one configured model without changing
// the active selection.
func (h *ModelsHandler) PingModel(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeModelKeyRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "key is required; kind must be chat or embedding")
		return
	}

	d, found := h.descriptorForKey(req.Key, req.Kind)
	if !found {
		writeError(w, http.StatusNotFound, "unknown model key")
		return
	}

	var okPing bool
	var err error
	if req.Kind == kindEmbedding {
		okPing, err = h.svc.PingEmbeddingModel(r.Context(), d)
	} else {
		okPing, err = h.svc.PingModel(r.Context(), d)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": okPing})
}

// ActivateModel makes the given model the default for its kind.
func (h *ModelsHandler) ActivateModel(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeModelKeyRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "key is required; kind must be chat or embedding")
		return
	}

	var err error
	if req.Kind == kindEmbedding {
		err = h.svc.ActivateEmbeddingModel(req.Key)
	} else {
		err = h.svc.ActivateModel(req.Key)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "key": req.Key})
}

// descriptorForKey resolves a key against the persisted model lists.
func (h *ModelsHandler) descriptorForKey(key, kind string) (model.Descriptor, bool) {
	s := h.store.Get()
	list := s.ActiveModels
	if kind == kindEmbedding {
		list = s.ActiveEmbeddingModels
	}
	for _, d := range list {
		if d.Key() == key {
			return d, true
		}
	}
	return model.Descriptor{}, false
}
