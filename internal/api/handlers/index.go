package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// IndexService rebuilds the vault search index.
type IndexService interface {
	RefreshIndex(ctx context.Context, force bool) error
}

// IndexHandler serves POST /index/refresh.
type IndexHandler struct {
	svc IndexService
}

func NewIndexHandler(svc IndexService) *IndexHandler {
	return &IndexHandler{svc: svc}
}

type refreshIndexRequest struct {
	Force bool `json:"force"`
}

func (h *IndexHandler) RefreshIndex(w http.ResponseWriter, r *http.Request) {
	// An empty body means an incremental refresh.
	var req refreshIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.RefreshIndex(r.Context(), req.Force); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "force": req.Force})
}
