package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/matiasleandrokruk/notepilot/internal/domain/chain"
)

// ChatService runs one conversational turn through the active chain.
type ChatService interface {
	Run(ctx context.Context, message string) (<-chan chain.StreamChunk, error)
}

// ChatHandler serves POST /chat as a server-sent event stream.
type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	stream, err := h.svc.Run(r.Context(), req.Message)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	bw, flusher, err := prepareChatStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	streamChatChunks(bw, flusher, stream)
}

// prepareChatStream sets SSE headers and returns the buffered writer plus
// flusher. Fails when the ResponseWriter cannot flush incrementally.
func prepareChatStream(w http.ResponseWriter) (*bufio.Writer, http.Flusher, error) {
	w.Header().Set(headerContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Flusher")
	}

	return bufio.NewWriter(w), flusher, nil
}

// streamChatChunks relays each chunk as one SSE data frame, flushing after
// every frame so tokens reach the client as they arrive.
func streamChatChunks(bw *bufio.Writer, flusher http.Flusher, stream <-chan chain.StreamChunk) {
	for chunk := range stream {
		b, _ := json.Marshal(chunk)
		if _, err := fmt.Fprintf(bw, "data: %s\n\n", string(b)); err != nil {
			return
		}
		_ = bw.Flush()
		flusher.Flush()
	}
}
