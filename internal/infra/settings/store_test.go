// Unit tests for the reactive settings store.
package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/notepilot/internal/infra/eventbus"
)

func testStore(t *testing.T, initial Settings) *Store {
	t.Helper()
	return NewStore(initial, "", eventbus.New(), zerolog.Nop())
}

func twoChatModels() Settings {
	s := Default()
	s.ActiveModels = []ModelDescriptor{
		{Name: "gpt-4.1", Provider: "openai", Enabled: true, IsBuiltIn: true, Core: true},
		{Name: "claude-3-5-sonnet-latest", Provider: "anthropic", Enabled: true, IsBuiltIn: true},
	}
	s.DefaultModelKey = "gpt-4.1|openai"
	return s
}

// ============================================================================
// Get / Update
// ============================================================================

func TestStore_Get_ReturnsDeepCopy(t *testing.T) {
	t.Parallel()

	st := testStore(t, twoChatModels())
	got := st.Get()
	got.ActiveModels[0].Enabled = false
	got.ProviderKeys["openai"] = "tampered"

	fresh := st.Get()
	if !fresh.ActiveModels[0].Enabled {
		t.Error("mutating a Get copy must not affect the store")
	}
	if _, ok := fresh.ProviderKeys["openai"]; ok {
		t.Error("mutating a Get copy's map must not affect the store")
	}
}

func TestStore_Update_AppliesMutationAtomically(t *testing.T) {
	t.Parallel()

	st := testStore(t, twoChatModels())
	st.Update(func(s *Settings) {
		s.MaxSourceChunks = 10
		s.ProviderKeys["openai"] = "sk-live"
	})

	got := st.Get()
	if got.MaxSourceChunks != 10 {
		t.Errorf("expected MaxSourceChunks 10, got %d", got.MaxSourceChunks)
	}
	if got.ProviderKeys["openai"] != "sk-live" {
		t.Errorf("expected provider key persisted, got %q", got.ProviderKeys["openai"])
	}
}

// ============================================================================
// Fan-out
// ============================================================================

func TestStore_Update_FanOutIsSynchronousAndOrdered(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	st := NewStore(twoChatModels(), "", bus, zerolog.Nop())

	var order []string
	st.Subscribe(TopicModel, func(Settings) { order = append(order, "model") })
	st.Subscribe(TopicChanged, func(Settings) { order = append(order, "changed") })

	st.Update(func(s *Settings) { s.ProviderKeys["openai"] = "sk" })

	if len(order) != 2 || order[0] != "model" || order[1] != "changed" {
		t.Errorf("expected [model changed] delivered before Update returned, got %v", order)
	}
}

func TestStore_Update_ChainTopicOnlyOnChainTypeChange(t *testing.T) {
	t.Parallel()

	st := testStore(t, twoChatModels())

	chainEvents := 0
	st.Subscribe(TopicChain, func(Settings) { chainEvents++ })

	st.Update(func(s *Settings) { s.MaxSourceChunks = 7 })
	if chainEvents != 0 {
		t.Fatalf("expected no chain event for unrelated change, got %d", chainEvents)
	}

	st.Update(func(s *Settings) { s.DefaultChainType = "vault_qa_chain" })
	if chainEvents != 1 {
		t.Errorf("expected 1 chain event, got %d", chainEvents)
	}
}

func TestStore_Update_NoModelTopicForUnrelatedChange(t *testing.T) {
	t.Parallel()

	st := testStore(t, twoChatModels())

	modelEvents := 0
	st.Subscribe(TopicModel, func(Settings) { modelEvents++ })

	st.Update(func(s *Settings) { s.UserSystemPrompt = "be brief" })
	if modelEvents != 0 {
		t.Errorf("expected no model event for a prompt change, got %d", modelEvents)
	}
}

// ============================================================================
// Default-key repair
// ============================================================================

func TestStore_Update_DisablingDefaultModel_ReassignsDefaultKey(t *testing.T) {
	t.Parallel()

	st := testStore(t, twoChatModels())
	st.Update(func(s *Settings) {
		s.ActiveModels[0].Enabled = false
	})

	got := st.Get()
	if got.DefaultModelKey != "claude-3-5-sonnet-latest|anthropic" {
		t.Errorf("expected default reassigned to next enabled model, got %q", got.DefaultModelKey)
	}
}

func TestStore_Update_DisablingAllModels_ClearsDefaultKey(t *testing.T) {
	t.Parallel()

	st := testStore(t, twoChatModels())
	st.Update(func(s *Settings) {
		for i := range s.ActiveModels {
			s.ActiveModels[i].Enabled = false
		}
	})

	if got := st.Get().DefaultModelKey; got != "" {
		t.Errorf("expected empty default key when nothing is enabled, got %q", got)
	}
}

// ============================================================================
// Persistence
// ============================================================================

func TestStore_Load_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	bus := eventbus.New()
	st := NewStore(twoChatModels(), path, bus, zerolog.Nop())
	st.Update(func(s *Settings) {
		s.MaxSourceChunks = 12
		s.AutoIndexStrategy = AutoIndexOnModeSwitch
	})

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.MaxSourceChunks != 12 {
		t.Errorf("expected MaxSourceChunks 12 after reload, got %d", loaded.MaxSourceChunks)
	}
	if loaded.AutoIndexStrategy != AutoIndexOnModeSwitch {
		t.Errorf("expected strategy %q, got %q", AutoIndexOnModeSwitch, loaded.AutoIndexStrategy)
	}
	if len(loaded.ActiveModels) != 2 {
		t.Errorf("expected 2 models after reload, got %d", len(loaded.ActiveModels))
	}
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	t.Parallel()

	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.DefaultChainType != "llm_chain" {
		t.Errorf("expected default chain type llm_chain, got %q", s.DefaultChainType)
	}
	if s.MaxSourceChunks != 3 {
		t.Errorf("expected default MaxSourceChunks 3, got %d", s.MaxSourceChunks)
	}
}

func TestLoad_MalformedYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml, got nil")
	}
}
