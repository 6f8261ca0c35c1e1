package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// embedProbeText is the fixed string a ping embeds.
const embedProbeText = "notepilot probe"

// EmbeddingRegistry mirrors ChatRegistry for embedding models. Kept as a
// separate concrete type: the adapters, probe shape, and settings fields all
// differ, and the two registries evolve independently.
type EmbeddingRegistry struct {
	adapters *llm.AdapterSet
	creds    *CredentialResolver
	log      zerolog.Logger

	mu         sync.Mutex
	entries    map[string]Entry
	current    llm.Client
	currentKey string
}

// NewEmbeddingRegistry creates an empty registry; call Rebuild before Activate.
func NewEmbeddingRegistry(adapters *llm.AdapterSet, creds *CredentialResolver, log zerolog.Logger) *EmbeddingRegistry {
	return &EmbeddingRegistry{
		adapters: adapters,
		creds:    creds,
		log:      log,
		entries:  map[string]Entry{},
	}
}

// Rebuild derives the key→entry map from the embedding model list. Same
// semantics as ChatRegistry.Rebuild: skip-with-log on unknown providers,
// idempotent, clears an invalidated live client.
func (r *EmbeddingRegistry) Rebuild(s settings.Settings) {
	entries := make(map[string]Entry, len(s.ActiveEmbeddingModels))
	for _, d := range s.ActiveEmbeddingModels {
		if !d.Enabled {
			continue
		}
		vendor := VendorFor(d, s, r.adapters.HasEmbedder)
		if vendor == "" {
			r.log.Warn().Str("key", d.Key()).Str("provider", d.Provider).
				Msg("embedding registry: unrecognized provider, model skipped")
			continue
		}
		cred, err := r.creds.Resolve(d, s)
		if err != nil {
			r.log.Warn().Err(err).Str("key", d.Key()).
				Msg("embedding registry: credential resolution failed")
			cred = ""
		}
		entries[d.Key()] = Entry{
			Descriptor:    d,
			Vendor:        vendor,
			HasCredential: cred != "",
			credential:    cred,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	if r.currentKey != "" {
		if e, ok := entries[r.currentKey]; !ok || !e.HasCredential {
			r.log.Warn().Str("key", r.currentKey).
				Msg("embedding registry: live client invalidated by settings change")
			r.dropCurrentLocked()
		}
	}
}

// Lookup returns the entry for key.
func (r *EmbeddingRegistry) Lookup(key string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

// Entries returns a copy of the derived map.
func (r *EmbeddingRegistry) Entries() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Activate constructs the live embedder for key and makes it current. Same
// error contract as ChatRegistry.Activate.
func (r *EmbeddingRegistry) Activate(key string, s settings.Settings) (llm.Embedder, error) {
	entry, ok := r.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchModel, key)
	}
	if !entry.HasCredential {
		return nil, fmt.Errorf("%w: %q", ErrMissingCredential, key)
	}

	rc := ConfigForKey(key, s.ModelConfigs)
	if err := ValidateRuntimeConfig(rc); err != nil {
		return nil, err
	}

	params := ResolveParams(entry.Descriptor, rc, s, entry.credential)
	embedder, err := r.adapters.NewEmbedder(entry.Vendor, params)
	if err != nil {
		return nil, &ConstructionError{Key: key, Err: err}
	}

	cl := llm.NewEmbeddingClient(embedder)
	r.mu.Lock()
	r.current = cl
	r.currentKey = key
	r.mu.Unlock()

	r.log.Info().Str("key", key).Str("vendor", entry.Vendor).
		Str("model", cl.Meta().Model).Msg("embedding model activated")
	return embedder, nil
}

// Current returns the live embedder and its key; nil when none is active.
func (r *EmbeddingRegistry) Current() (llm.Embedder, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Embedder, r.currentKey
}

// ClearCurrent drops the live embedder reference.
func (r *EmbeddingRegistry) ClearCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropCurrentLocked()
}

func (r *EmbeddingRegistry) dropCurrentLocked() {
	r.current = llm.Client{}
	r.currentKey = ""
}

// Ping verifies the descriptor is reachable by embedding a fixed probe
// string, with the same two-phase CORS retry as chat pings.
func (r *EmbeddingRegistry) Ping(ctx context.Context, d Descriptor, s settings.Settings) (PingResult, error) {
	cred, err := r.creds.Resolve(d, s)
	if err != nil {
		return PingResult{}, err
	}
	rc := ConfigForKey(d.Key(), s.ModelConfigs)

	firstErr := r.probe(ctx, d, rc, s, cred, false)
	if firstErr == nil {
		return PingResult{OK: true}, nil
	}
	if retryErr := r.probe(ctx, d, rc, s, cred, true); retryErr == nil {
		r.log.Info().Str("key", d.Key()).Msg("ping succeeded only via CORS client")
		return PingResult{OK: true, RequiresCORS: true}, nil
	}
	return PingResult{}, fmt.Errorf("model: ping %q: %w", d.Key(), firstErr)
}

func (r *EmbeddingRegistry) probe(ctx context.Context, d Descriptor, rc RuntimeConfig, s settings.Settings, cred string, cors bool) error {
	vendor := VendorFor(d, s, r.adapters.HasEmbedder)
	if vendor == "" {
		return fmt.Errorf("unrecognized provider %q", d.Provider)
	}

	params := ResolveParams(d, rc, s, cred)
	params.EnableCORS = cors
	params.RequestTimeoutMS = pingTimeoutMS

	embedder, err := r.adapters.NewEmbedder(vendor, params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeoutMS*time.Millisecond)
	defer cancel()
	_, err = embedder.Embed(ctx, llm.EmbedRequest{Texts: []string{embedProbeText}})
	return err
}
