package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matiasleandrokruk/notepilot/internal/domain/chain"
)

type stubChatService struct {
	frames []chain.StreamChunk
	err    error

	gotMessage string
}

func (s *stubChatService) Run(ctx context.Context, message string) (<-chan chain.StreamChunk, error) {
	s.gotMessage = message
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan chain.StreamChunk, len(s.frames))
	for _, f := range s.frames {
		out <- f
	}
	close(out)
	return out, nil
}

func TestChatHandler_StreamsSSEFrames(t *testing.T) {
	t.Parallel()

	svc := &stubChatService{frames: []chain.StreamChunk{
		{Type: "token", Delta: "Hello "},
		{Type: "token", Delta: "world"},
		{Type: "done", Done: true},
	}}
	h := NewChatHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if svc.gotMessage != "hi" {
		t.Errorf("service got message %q, want %q", svc.gotMessage, "hi")
	}

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("got %d SSE frames, want 3: %q", len(frames), body)
	}
	if !strings.HasPrefix(frames[0], `data: {"type":"token"`) {
		t.Errorf("first frame = %q, want token frame", frames[0])
	}
	if !strings.Contains(frames[2], `"done":true`) {
		t.Errorf("last frame = %q, want done frame", frames[2])
	}
}

func TestChatHandler_MissingMessage(t *testing.T) {
	t.Parallel()

	h := NewChatHandler(&stubChatService{})
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatHandler_InvalidBody(t *testing.T) {
	t.Parallel()

	h := NewChatHandler(&stubChatService{})
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatHandler_RetrievalUnavailableMapsTo409(t *testing.T) {
	t.Parallel()

	h := NewChatHandler(&stubChatService{err: chain.ErrRetrievalUnavailable})
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
