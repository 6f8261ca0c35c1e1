package model

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// stubEmbedder mirrors stubChatModel for the embedding side.
type stubEmbedder struct {
	params    llm.Params
	failPlain bool
}

func (s *stubEmbedder) Embed(_ context.Context, req llm.EmbedRequest) (*llm.EmbedResponse, error) {
	if s.failPlain && !s.params.EnableCORS {
		return nil, errors.New("stub: blocked by gateway")
	}
	vecs := make([][]float32, len(req.Texts))
	for i := range vecs {
		vecs[i] = []float32{0.1, 0.2}
	}
	return &llm.EmbedResponse{Embeddings: vecs}, nil
}

func (s *stubEmbedder) Meta() llm.ModelMeta {
	return llm.ModelMeta{Model: s.params.Model, Provider: s.params.Provider}
}

func (s *stubEmbedder) HealthCheck(context.Context) error { return nil }

func stubEmbedAdapters(failPlain bool) *llm.AdapterSet {
	set := llm.NewAdapterSet()
	set.RegisterEmbedder("fakeembed", func(p llm.Params) (llm.Embedder, error) {
		return &stubEmbedder{params: p, failPlain: failPlain}, nil
	})
	return set
}

func embedSettings() settings.Settings {
	s := settings.Default()
	s.ActiveEmbeddingModels = []Descriptor{
		{Name: "vec-small", Provider: "fakeembed", Enabled: true, IsBuiltIn: true, Core: true},
		{Name: "ghost", Provider: "unknown", Enabled: true},
	}
	s.ProviderKeys = map[string]string{"fakeembed": "sk-fake"}
	return s
}

func newEmbedRegistry(adapters *llm.AdapterSet) *EmbeddingRegistry {
	return NewEmbeddingRegistry(adapters, NewCredentialResolver(adapters, nil), zerolog.Nop())
}

func TestEmbeddingRegistry_Rebuild_SkipsUnknownProvider(t *testing.T) {
	t.Parallel()

	r := newEmbedRegistry(stubEmbedAdapters(false))
	r.Rebuild(embedSettings())

	entries := r.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if _, ok := entries["vec-small|fakeembed"]; !ok {
		t.Error("expected vec-small registered")
	}
}

func TestEmbeddingRegistry_ActivateAndCurrent(t *testing.T) {
	t.Parallel()

	r := newEmbedRegistry(stubEmbedAdapters(false))
	s := embedSettings()
	r.Rebuild(s)

	emb, err := r.Activate("vec-small|fakeembed", s)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	cur, key := r.Current()
	if cur != emb || key != "vec-small|fakeembed" {
		t.Error("expected current embedder updated")
	}

	if _, err := r.Activate("nope|fakeembed", s); !errors.Is(err, ErrNoSuchModel) {
		t.Errorf("expected ErrNoSuchModel, got %v", err)
	}
}

func TestEmbeddingRegistry_Ping_CORSRetry(t *testing.T) {
	t.Parallel()

	r := newEmbedRegistry(stubEmbedAdapters(true))
	s := embedSettings()
	d := s.ActiveEmbeddingModels[0]

	res, err := r.Ping(context.Background(), d, s)
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if !res.OK || !res.RequiresCORS {
		t.Errorf("expected CORS-retry success, got %+v", res)
	}
}
