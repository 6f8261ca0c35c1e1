package chain

import (
	"strings"
	"sync"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
)

// defaultContextTurns bounds conversation history when the runtime config
// does not set one.
const defaultContextTurns = 15

// Memory keeps a bounded window of completed conversation turns. Oldest
// turns are evicted first; a turn is one user message plus the assistant
// answer.
type Memory struct {
	mu       sync.Mutex
	maxTurns int
	turns    []turn
}

type turn struct {
	user      string
	assistant string
}

// NewMemory creates a Memory holding at most maxTurns turns; values <= 0
// select the default window.
func NewMemory(maxTurns int) *Memory {
	if maxTurns <= 0 {
		maxTurns = defaultContextTurns
	}
	return &Memory{maxTurns: maxTurns}
}

// AddTurn records a completed exchange, evicting the oldest beyond the cap.
func (m *Memory) AddTurn(user, assistant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn{user: user, assistant: assistant})
	if len(m.turns) > m.maxTurns {
		m.turns = m.turns[len(m.turns)-m.maxTurns:]
	}
}

// Clear drops all recorded turns.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.turns = nil
	m.mu.Unlock()
}

// Messages assembles the request message list: optional system prompt,
// recorded history, then the new user message.
func (m *Memory) Messages(systemPrompt, userMessage string) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]llm.Message, 0, 2*len(m.turns)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, t := range m.turns {
		msgs = append(msgs, llm.Message{Role: "user", Content: t.user})
		msgs = append(msgs, llm.Message{Role: "assistant", Content: t.assistant})
	}
	return append(msgs, llm.Message{Role: "user", Content: userMessage})
}
