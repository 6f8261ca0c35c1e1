package model

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// Entry is one derived registry record: rebuilt whenever settings change,
// never persisted.
type Entry struct {
	Descriptor    Descriptor
	Vendor        string // adapter-table provider id (azure for deployment keys)
	HasCredential bool

	credential string
}

// PingResult reports a connectivity probe outcome. RequiresCORS is set when
// the first attempt failed and only the CORS-enabled retry reached the
// provider — the descriptor should be saved with EnableCORS=true.
type PingResult struct {
	OK           bool
	RequiresCORS bool
}

const (
	// pingTimeoutMS caps a probe request; pings must fail fast, not hang on
	// a model's configured timeout.
	pingTimeoutMS = 6000

	chatProbeMessage = "hi"
)

// ChatRegistry maps model keys to activatable chat entries and owns the
// single current live chat client.
type ChatRegistry struct {
	adapters *llm.AdapterSet
	creds    *CredentialResolver
	log      zerolog.Logger

	mu         sync.Mutex
	entries    map[string]Entry
	current    llm.Client
	currentKey string
}

// NewChatRegistry creates an empty registry; call Rebuild before Activate.
func NewChatRegistry(adapters *llm.AdapterSet, creds *CredentialResolver, log zerolog.Logger) *ChatRegistry {
	return &ChatRegistry{
		adapters: adapters,
		creds:    creds,
		log:      log,
		entries:  map[string]Entry{},
	}
}

// Rebuild derives a fresh key→entry map from settings. A descriptor whose
// provider is unrecognized is skipped with a log so one malformed entry
// cannot disable every model. Idempotent: identical settings produce an
// identical map. When the current live client's key loses its credential,
// the client reference is cleared.
func (r *ChatRegistry) Rebuild(s settings.Settings) {
	entries := make(map[string]Entry, len(s.ActiveModels))
	for _, d := range s.ActiveModels {
		if !d.Enabled {
			continue
		}
		vendor := VendorFor(d, s, r.adapters.HasChat)
		if vendor == "" {
			r.log.Warn().Str("key", d.Key()).Str("provider", d.Provider).
				Msg("chat registry: unrecognized provider, model skipped")
			continue
		}
		cred, err := r.creds.Resolve(d, s)
		if err != nil {
			r.log.Warn().Err(err).Str("key", d.Key()).
				Msg("chat registry: credential resolution failed")
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
				Msg("chat registry: live client invalidated by settings change")
			r.dropCurrentLocked()
		}
	}
}

// Lookup returns the entry for key.
func (r *ChatRegistry) Lookup(key string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

// keys returns all registry keys, sorted.
func (r *ChatRegistry) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns a copy of the derived map, keyed for listing.
func (r *ChatRegistry) Entries() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Activate constructs the live client for key and makes it current.
// ErrNoSuchModel and ErrMissingCredential fail fast without a network call;
// a constructor failure surfaces as *ConstructionError and leaves the
// previous live client authoritative.
func (r *ChatRegistry) Activate(key string, s settings.Settings) (llm.ChatModel, error) {
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
	client, err := r.adapters.NewChat(entry.Vendor, params)
	if err != nil {
		return nil, &ConstructionError{Key: key, Err: err}
	}

	cl := llm.NewChatClient(client)
	r.mu.Lock()
	r.current = cl
	r.currentKey = key
	r.mu.Unlock()

	r.log.Info().Str("key", key).Str("vendor", entry.Vendor).
		Str("model", cl.Meta().Model).Msg("chat model activated")
	return client, nil
}

// Current returns the live client and its key; client is nil when no model
// is active.
func (r *ChatRegistry) Current() (llm.ChatModel, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Chat, r.currentKey
}

// ClearCurrent drops the live client reference.
func (r *ChatRegistry) ClearCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropCurrentLocked()
}

func (r *ChatRegistry) dropCurrentLocked() {
	r.current = llm.Client{}
	r.currentKey = ""
}

// Ping verifies the descriptor is reachable with a one-token completion.
// Two-phase sequential retry: first with EnableCORS=false; on any failure
// once more with EnableCORS=true. If only the second attempt succeeds the
// result carries RequiresCORS=true. If both fail, the first attempt's error
// is surfaced.
func (r *ChatRegistry) Ping(ctx context.Context, d Descriptor, s settings.Settings) (PingResult, error) {
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

func (r *ChatRegistry) probe(ctx context.Context, d Descriptor, rc RuntimeConfig, s settings.Settings, cred string, cors bool) error {
	vendor := VendorFor(d, s, r.adapters.HasChat)
	if vendor == "" {
		return fmt.Errorf("unrecognized provider %q", d.Provider)
	}

	params := ResolveParams(d, rc, s, cred)
	params.EnableCORS = cors
	params.RequestTimeoutMS = pingTimeoutMS

	client, err := r.adapters.NewChat(vendor, params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeoutMS*time.Millisecond)
	defer cancel()
	_, err = client.Chat(ctx, llm.ChatRequest{
		Messages:  []llm.Message{{Role: "user", Content: chatProbeMessage}},
		MaxTokens: 1,
	})
	return err
}
