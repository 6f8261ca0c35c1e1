package chain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matiasleandrokruk/notepilot/internal/domain/model"
	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
	"github.com/matiasleandrokruk/notepilot/internal/domain/vault"
)

// Compile-time interface checks.
var (
	_ Chain = (*LLMChain)(nil)
	_ Chain = (*VaultQAChain)(nil)
	_ Chain = (*CopilotPlusChain)(nil)
)

// ============================================================================
// Memory
// ============================================================================

func TestMemory_EvictsOldestBeyondWindow(t *testing.T) {
	t.Parallel()

	m := NewMemory(2)
	m.AddTurn("first", "a1")
	m.AddTurn("second", "a2")
	m.AddTurn("third", "a3")

	msgs := m.Messages("", "fourth")
	// 2 turns * 2 messages + the new user message.
	if len(msgs) != 5 {
		t.Fatalf("messages = %d; want 5", len(msgs))
	}
	if msgs[0].Content != "second" {
		t.Errorf("oldest surviving turn = %q; want %q", msgs[0].Content, "second")
	}
	if last := msgs[len(msgs)-1]; last.Role != "user" || last.Content != "fourth" {
		t.Errorf("last message = %+v", last)
	}
}

func TestMemory_MessagesIncludeSystemPrompt(t *testing.T) {
	t.Parallel()

	m := NewMemory(0)
	msgs := m.Messages("be brief", "question")
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[0].Content != "be brief" {
		t.Fatalf("messages = %+v; want system prompt first", msgs)
	}

	msgs = m.Messages("   ", "question")
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Errorf("blank prompt: messages = %+v; want user only", msgs)
	}
}

func TestMemory_Clear(t *testing.T) {
	t.Parallel()

	m := NewMemory(5)
	m.AddTurn("u", "a")
	m.Clear()
	if msgs := m.Messages("", "next"); len(msgs) != 1 {
		t.Errorf("messages after Clear = %d; want 1", len(msgs))
	}
}

// ============================================================================
// Prompt assembly
// ============================================================================

func TestBuildQAPrompt_FoldsSourcesWithIndices(t *testing.T) {
	t.Parallel()

	got := buildQAPrompt("when is the upgrade?", []SourceChunk{
		{Title: "Cluster Upgrade", Snippet: "upgrade scheduled for friday"},
		{Snippet: "rollback plan in the runbook"},
	})
	if !strings.Contains(got, "[1] Cluster Upgrade: upgrade scheduled for friday") {
		t.Errorf("prompt missing titled source: %q", got)
	}
	if !strings.Contains(got, "[2] rollback plan in the runbook") {
		t.Errorf("prompt missing untitled source: %q", got)
	}
}

func TestBuildQAPrompt_NoSourcesReturnsQuery(t *testing.T) {
	t.Parallel()

	if got := buildQAPrompt("plain question", nil); got != "plain question" {
		t.Errorf("got %q", got)
	}
}

// ============================================================================
// LLMChain
// ============================================================================

func TestLLMChain_RecordsTurnAndReusesHistory(t *testing.T) {
	t.Parallel()

	chat := &stubChat{tokens: []string{"first ", "answer"}}
	c := NewLLMChain(chat, NewMemory(5), "")

	drain(t, mustRun(t, c, "opening question"))

	drain(t, mustRun(t, c, "follow-up"))
	msgs := chat.messages()
	var haveHistory bool
	for _, m := range msgs {
		if m.Role == "assistant" && m.Content == "first answer" {
			haveHistory = true
		}
	}
	if !haveHistory {
		t.Errorf("second request messages = %+v; want the recorded first answer", msgs)
	}
}

func TestLLMChain_StreamErrorSkipsMemory(t *testing.T) {
	t.Parallel()

	chat := &stubChat{failPlain: true} // constructed without CORS params
	c := NewLLMChain(chat, NewMemory(5), "")
	if _, err := c.Run(context.Background(), "q"); !errors.Is(err, errBlockedPlain) {
		t.Fatalf("error = %v; want the provider error surfaced", err)
	}
	if msgs := c.memory.Messages("", "next"); len(msgs) != 1 {
		t.Errorf("failed run must not record a turn, got %d messages", len(msgs))
	}
}

// ============================================================================
// VaultQAChain
// ============================================================================

func TestVaultQAChain_EmitsSourcesBeforeTokens(t *testing.T) {
	t.Parallel()

	chat := &stubChat{tokens: []string{"grounded ", "answer"}}
	ret := &stubRetriever{results: testResults()}
	c := NewVaultQAChain(chat, ret, NewMemory(5), "", 3)

	frames := drain(t, mustRun(t, c, "what about kubernetes?"))
	if frames[0].Type != "sources" || len(frames[0].Sources) != 1 {
		t.Fatalf("first frame = %+v; want the sources frame", frames[0])
	}
	if frames[1].Type != "token" {
		t.Errorf("second frame = %+v; want a token", frames[1])
	}

	if ret.lastMaxResults != 3 {
		t.Errorf("maxResults = %d; want the configured source cap", ret.lastMaxResults)
	}
	if ret.lastMinScore != minSimilarityFloor {
		t.Errorf("minScore = %v; want the fixed floor", ret.lastMinScore)
	}
	if got := c.LastSources(); len(got) != 1 || got[0].Path != "infra/k8s.md" {
		t.Errorf("LastSources = %+v", got)
	}
}

func TestVaultQAChain_PromptCarriesRetrievedSnippets(t *testing.T) {
	t.Parallel()

	chat := &stubChat{tokens: []string{"ok"}}
	c := NewVaultQAChain(chat, &stubRetriever{results: testResults()}, NewMemory(5), "", 3)

	drain(t, mustRun(t, c, "what about kubernetes?"))
	msgs := chat.messages()
	user := msgs[len(msgs)-1]
	if !strings.Contains(user.Content, "kubernetes upgrade runbook") {
		t.Errorf("user message %q must carry the retrieved snippet", user.Content)
	}
}

// ============================================================================
// CopilotPlusChain
// ============================================================================

func TestNewCopilotPlusChain_TimeoutBounds(t *testing.T) {
	t.Parallel()

	mk := func(timeoutMS int) error {
		_, err := NewCopilotPlusChain(&stubChat{}, &stubRetriever{}, NewMemory(5), "", 3, timeoutMS)
		return err
	}

	for _, timeoutMS := range []int{1, 120000, 0} {
		if err := mk(timeoutMS); err != nil {
			t.Errorf("timeout %d: unexpected error %v", timeoutMS, err)
		}
	}
	for _, timeoutMS := range []int{-1, 120001} {
		var verr *model.ValidationError
		if err := mk(timeoutMS); !errors.As(err, &verr) {
			t.Errorf("timeout %d: error = %v; want *ValidationError", timeoutMS, err)
		}
	}
}

func TestCopilotPlusChain_StreamsWithSources(t *testing.T) {
	t.Parallel()

	chat := &stubChat{tokens: []string{"copilot ", "answer"}}
	c, err := NewCopilotPlusChain(chat, &stubRetriever{results: testResults()}, NewMemory(5), "", 3, 5000)
	if err != nil {
		t.Fatalf("NewCopilotPlusChain: %v", err)
	}

	frames := drain(t, mustRun(t, c, "summarize my notes"))
	if frames[0].Type != "sources" {
		t.Fatalf("first frame = %+v; want sources", frames[0])
	}
	if last := frames[len(frames)-1]; last.Type != "done" {
		t.Errorf("last frame = %+v; want done", last)
	}
}

// ============================================================================
// Stream cancellation
// ============================================================================

// stalledChat streams deltas endlessly: the channel never closes and no Done
// chunk ever arrives, so the chain's stream goroutine can only exit through
// context cancellation.
type stalledChat struct{}

func (c *stalledChat) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (c *stalledChat) ChatStream(_ context.Context, _ llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	go func() {
		for {
			ch <- llm.StreamChunk{Delta: "x"}
		}
	}()
	return ch, nil
}

func (c *stalledChat) Meta() llm.ModelMeta {
	return llm.ModelMeta{Model: "stalled", Provider: "fakechat"}
}

func (c *stalledChat) HealthCheck(_ context.Context) error { return nil }

// waitClosed fails the test unless ch reaches closure within the deadline.
// A stream goroutine parked on a plain send never closes its channel, so a
// timeout here means that goroutine leaked.
func waitClosed(t *testing.T, ch <-chan StreamChunk) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream not closed after cancel; producer goroutine is stuck")
		}
	}
}

func TestLLMChain_CancelReleasesAbandonedStream(t *testing.T) {
	t.Parallel()

	mem := NewMemory(5)
	c := NewLLMChain(&stalledChat{}, mem, "")

	ctx, cancel := context.WithCancel(context.Background())
	out, err := c.Run(ctx, "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Take one frame, then abandon the stream the way a disconnected
	// client would: stop reading and cancel.
	if frame := <-out; frame.Type != "token" {
		t.Fatalf("first frame = %+v; want a token", frame)
	}
	cancel()

	waitClosed(t, out)
	if msgs := mem.Messages("", "next"); len(msgs) != 1 {
		t.Errorf("cancelled run must not record a turn, got %d messages", len(msgs))
	}
}

func TestCopilotPlusChain_CancelReleasesAbandonedStream(t *testing.T) {
	t.Parallel()

	c, err := NewCopilotPlusChain(&stalledChat{}, &stubRetriever{results: testResults()}, NewMemory(5), "", 3, 60000)
	if err != nil {
		t.Fatalf("NewCopilotPlusChain: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out, err := c.Run(ctx, "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if frame := <-out; frame.Type != "sources" {
		t.Fatalf("first frame = %+v; want sources", frame)
	}
	cancel()

	waitClosed(t, out)
}

// ============================================================================
// Helpers
// ============================================================================

func testResults() []vault.Result {
	return []vault.Result{{
		ChunkID:  "c1",
		NotePath: "infra/k8s.md",
		Title:    "Cluster Upgrade",
		Snippet:  "kubernetes upgrade runbook",
		Score:    0.03,
		Method:   vault.MethodHybrid,
	}}
}

func mustRun(t *testing.T, c Chain, message string) <-chan StreamChunk {
	t.Helper()
	out, err := c.Run(context.Background(), message)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out
}
