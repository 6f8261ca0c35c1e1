package settings

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/matiasleandrokruk/notepilot/internal/infra/eventbus"
)

// Topics published by the store. Handlers run synchronously inside Update, in
// subscription order, before Update returns.
const (
	TopicChanged = "settings.changed" // every mutation
	TopicModel   = "settings.model"   // model lists, default keys, credentials
	TopicChain   = "settings.chain"   // default chain type
)

// Store is the single authority over the settings document. All reads get a
// deep copy; all writes go through Update so persistence and fan-out cannot
// be skipped.
type Store struct {
	path string
	bus  *eventbus.Bus
	log  zerolog.Logger

	mu      sync.Mutex // guards current; publishes happen outside the lock
	current Settings
}

// NewStore creates a store over an initial document. path may be empty for
// an in-memory store (tests).
func NewStore(initial Settings, path string, bus *eventbus.Bus, log zerolog.Logger) *Store {
	initial = initial.Clone()
	initial.normalizeDefaults()
	return &Store{path: path, bus: bus, log: log, current: initial}
}

// Load reads the YAML document at path. A missing file yields Default().
func Load(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
	}
	s := Default()
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	s.normalizeDefaults()
	return s, nil
}

// Get returns a deep copy of the current document.
func (st *Store) Get() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current.Clone()
}

// Update applies mutate atomically, repairs dangling default keys, persists,
// and fans out. Fan-out order: TopicModel (when model-relevant fields
// changed), TopicChain (when the default chain type changed), then
// TopicChanged unconditionally. Handlers run in the caller's goroutine; when
// the last handler returns every derived registry has already rebuilt.
//
// The store is single-writer by contract: Update must not be called from a
// subscriber, and the orchestrator drives all mutations from one goroutine.
func (st *Store) Update(mutate func(*Settings)) Settings {
	st.mu.Lock()
	prev := st.current
	next := prev.Clone()
	mutate(&next)
	if next.normalizeDefaults() {
		st.log.Warn().
			Str("default_model_key", next.DefaultModelKey).
			Msg("settings: default model no longer enabled, reassigned")
	}
	st.current = next
	st.mu.Unlock()

	if st.path != "" {
		if err := st.save(next); err != nil {
			st.log.Error().Err(err).Str("path", st.path).Msg("settings: persist failed")
		}
	}

	snapshot := next.Clone()
	if modelFieldsChanged(prev, next) {
		st.bus.Publish(TopicModel, snapshot)
	}
	if prev.DefaultChainType != next.DefaultChainType {
		st.bus.Publish(TopicChain, snapshot)
	}
	st.bus.Publish(TopicChanged, snapshot)
	return snapshot
}

// Subscribe registers fn on one of the store topics; the payload is always a
// full settings snapshot. Returns the unsubscribe func.
func (st *Store) Subscribe(topic string, fn func(Settings)) func() {
	return st.bus.Subscribe(topic, func(evt eventbus.Event) {
		if s, ok := evt.Payload.(Settings); ok {
			fn(s)
		}
	})
}

func (st *Store) save(s Settings) error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(st.path, raw, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// modelFieldsChanged reports whether any field the model registries derive
// from was mutated.
func modelFieldsChanged(a, b Settings) bool {
	return !reflect.DeepEqual(a.ActiveModels, b.ActiveModels) ||
		!reflect.DeepEqual(a.ActiveEmbeddingModels, b.ActiveEmbeddingModels) ||
		a.DefaultModelKey != b.DefaultModelKey ||
		a.DefaultEmbeddingKey != b.DefaultEmbeddingKey ||
		!reflect.DeepEqual(a.ProviderKeys, b.ProviderKeys) ||
		a.AzureInstance != b.AzureInstance ||
		a.AzureAPIKey != b.AzureAPIKey ||
		a.AzureAPIVersion != b.AzureAPIVersion ||
		a.AzureDeploymentName != b.AzureDeploymentName ||
		!reflect.DeepEqual(a.AzureDeployments, b.AzureDeployments) ||
		!reflect.DeepEqual(a.ModelConfigs, b.ModelConfigs)
}
