package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/notepilot/internal/domain/model"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// State is the orchestrator lifecycle tag.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateError         State = "error"
)

// Notifier surfaces one human-readable notice per failure or warning to the
// user. Structured details go to the log; the notice stays short.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Orchestrator owns the single live chain and rebuilds it when the active
// model, the chain type, or any setting changes. Store callbacks run
// synchronously, so every transition below executes inside the mutating
// Update call; rebuilds are idempotent and safe to trigger redundantly.
type Orchestrator struct {
	store     *settings.Store
	chats     *model.ChatRegistry
	embeds    *model.EmbeddingRegistry
	index     VaultIndex
	retriever Retriever
	notifier  Notifier
	log       zerolog.Logger

	mu          sync.Mutex
	state       State
	chain       Chain
	lastErr     error
	lastSources []SourceChunk
	unsubs      []func()
}

// NewOrchestrator wires the orchestrator; call Start to activate models,
// build the first chain, and subscribe to settings changes.
func NewOrchestrator(store *settings.Store, chats *model.ChatRegistry, embeds *model.EmbeddingRegistry, index VaultIndex, retriever Retriever, notifier Notifier, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		chats:     chats,
		embeds:    embeds,
		index:     index,
		retriever: retriever,
		notifier:  notifier,
		log:       log,
		state:     StateUninitialized,
	}
}

// Start runs the initial model activation and chain build, applies the
// "on startup" auto-index strategy, and subscribes to the settings topics.
// A failed initial build leaves the orchestrator in Error; Run self-heals
// once conditions improve.
func (o *Orchestrator) Start(ctx context.Context) error {
	s := o.store.Get()
	o.activeModelChanged(ctx, s)

	if s.AutoIndexStrategy == settings.AutoIndexOnStartup && o.index != nil {
		if err := o.index.Refresh(ctx, false); err != nil {
			o.log.Warn().Err(err).Msg("startup index refresh failed")
		}
	}

	o.unsubs = append(o.unsubs,
		o.store.Subscribe(settings.TopicModel, func(s settings.Settings) {
			o.activeModelChanged(context.Background(), s)
		}),
		o.store.Subscribe(settings.TopicChain, func(s settings.Settings) {
			o.chainTypeChanged(context.Background(), s)
		}),
		o.store.Subscribe(settings.TopicChanged, func(s settings.Settings) {
			o.settingsChanged(context.Background(), s)
		}),
	)

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Close detaches the settings subscriptions.
func (o *Orchestrator) Close() {
	for _, unsub := range o.unsubs {
		unsub()
	}
	o.unsubs = nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastSources returns the citations from the most recent retrieval run.
func (o *Orchestrator) LastSources() []SourceChunk {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]SourceChunk(nil), o.lastSources...)
}

// ============================================================================
// Transitions
// ============================================================================

// activeModelChanged rebuilds the registries, re-resolves the default chat
// model (falling back to the first enabled built-in on a miss), activates it
// plus the default embedding model, then rebuilds the chain.
func (o *Orchestrator) activeModelChanged(ctx context.Context, s settings.Settings) {
	o.chats.Rebuild(s)
	o.embeds.Rebuild(s)

	key := s.DefaultModelKey
	if _, ok := o.chats.Lookup(key); !ok {
		fallback := model.FallbackDefaultKey(s.ActiveModels)
		if fallback == "" {
			o.chats.ClearCurrent()
			o.fail(fmt.Errorf("chain: active model changed: %w: %q and no built-in fallback", model.ErrNoSuchModel, key),
				"No chat model is available. Add or enable a model in settings.")
			return
		}
		o.log.Warn().Str("key", key).Str("fallback", fallback).Msg("active model missing, using fallback")
		o.notify(fmt.Sprintf("Model %q is not available; falling back to %q.", key, fallback))
		key = fallback
	}

	if _, err := o.chats.Activate(key, s); err != nil {
		o.fail(fmt.Errorf("chain: active model changed: activate %q: %w", key, err),
			fmt.Sprintf("Could not activate model %q: check its credential and settings.", key))
		return
	}

	o.activateEmbedding(s)
	o.buildChain(ctx, s)
}

// activateEmbedding activates the default embedding model. Failures degrade
// retrieval chains but never fail the transition. An empty default key means
// every embedding model was removed, so any live embedder must go too.
func (o *Orchestrator) activateEmbedding(s settings.Settings) {
	key := s.DefaultEmbeddingKey
	if key == "" {
		o.embeds.ClearCurrent()
		return
	}
	if _, err := o.embeds.Activate(key, s); err != nil {
		o.log.Warn().Err(err).Str("key", key).Msg("embedding model activation failed, retrieval degraded")
	}
}

// chainTypeChanged builds the chain for the newly selected type. When the
// target is retrieval-based and the auto-index strategy is "on mode switch",
// the vault index is refreshed before construction.
func (o *Orchestrator) chainTypeChanged(ctx context.Context, s settings.Settings) {
	t := Type(s.DefaultChainType)
	if t.RetrievalBased() && s.AutoIndexStrategy == settings.AutoIndexOnModeSwitch && o.index != nil {
		if err := o.index.Refresh(ctx, false); err != nil {
			o.fail(fmt.Errorf("chain: chain type changed: index refresh: %w", err),
				"Could not refresh the vault index before switching modes.")
			return
		}
	}
	o.buildChain(ctx, s)
}

// settingsChanged rebuilds unconditionally: token caps, prompts, and source
// limits affect the chain even without a model or type change.
func (o *Orchestrator) settingsChanged(ctx context.Context, s settings.Settings) {
	o.chats.Rebuild(s)
	o.embeds.Rebuild(s)
	o.buildChain(ctx, s)
}

// buildChain constructs the chain for the currently selected type and swaps
// it in. Failures are wrapped with the operation name, logged, and kept as
// the orchestrator error.
func (o *Orchestrator) buildChain(ctx context.Context, s settings.Settings) {
	t := Type(s.DefaultChainType)
	built, err := o.construct(ctx, s, t)
	if err != nil {
		o.fail(fmt.Errorf("chain: set chain %q: %w", t, err),
			fmt.Sprintf("Could not switch to %s: %v", t, err))
		return
	}

	o.mu.Lock()
	o.chain = built
	o.state = StateReady
	o.lastErr = nil
	o.mu.Unlock()
	o.log.Info().Str("chain_type", string(t)).Msg("chain rebuilt")
}

// construct builds a chain instance for the given type. The previous chain
// (and its memory) is discarded by the caller, never pooled.
func (o *Orchestrator) construct(ctx context.Context, s settings.Settings, t Type) (Chain, error) {
	chat, _ := o.chats.Current()
	rc := model.ConfigForKey(s.DefaultModelKey, s.ModelConfigs)

	turns := 0
	if rc.ContextTurns != nil {
		turns = *rc.ContextTurns
	}
	memory := NewMemory(turns)

	switch t {
	case TypeLLM:
		return NewLLMChain(chat, memory, s.UserSystemPrompt), nil

	case TypeVaultQA, TypeCopilotPlus:
		embedder, _ := o.embeds.Current()
		if embedder == nil || o.index == nil || o.retriever == nil {
			return nil, ErrRetrievalUnavailable
		}
		if err := o.index.GetOrInitialize(ctx, embedder); err != nil {
			return nil, fmt.Errorf("index bootstrap: %w", err)
		}
		if t == TypeVaultQA {
			return NewVaultQAChain(chat, o.retriever, memory, s.UserSystemPrompt, s.MaxSourceChunks), nil
		}
		timeoutMS := 0
		if rc.RequestTimeoutMS != nil {
			timeoutMS = *rc.RequestTimeoutMS
		}
		return NewCopilotPlusChain(chat, o.retriever, memory, s.UserSystemPrompt, s.MaxSourceChunks, timeoutMS)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChainType, t)
	}
}

// fail records the transition error, logs it, and emits one notice.
func (o *Orchestrator) fail(err error, notice string) {
	o.mu.Lock()
	o.state = StateError
	o.lastErr = err
	o.mu.Unlock()
	o.log.Error().Err(err).Msg("chain transition failed")
	o.notify(notice)
}

func (o *Orchestrator) notify(message string) {
	if o.notifier != nil {
		o.notifier.Notify(message)
	}
}

// ============================================================================
// Exposed operations
// ============================================================================

// ActivateModel activates the chat model for key and persists it as the
// default. Activation runs first so a bad key or missing credential fails
// fast without touching settings; the persisted change then triggers the
// normal rebuild fan-out.
func (o *Orchestrator) ActivateModel(key string) error {
	s := o.store.Get()
	if _, err := o.chats.Activate(key, s); err != nil {
		o.log.Error().Err(err).Str("key", key).Msg("model activation failed")
		o.notify(fmt.Sprintf("Could not activate model %q: %v", key, err))
		return err
	}
	o.store.Update(func(s *settings.Settings) {
		s.DefaultModelKey = key
	})
	return nil
}

// ActivateEmbeddingModel activates the embedding model for key and persists
// it as the default.
func (o *Orchestrator) ActivateEmbeddingModel(key string) error {
	s := o.store.Get()
	if _, err := o.embeds.Activate(key, s); err != nil {
		o.log.Error().Err(err).Str("key", key).Msg("embedding activation failed")
		o.notify(fmt.Sprintf("Could not activate embedding model %q: %v", key, err))
		return err
	}
	o.store.Update(func(s *settings.Settings) {
		s.DefaultEmbeddingKey = key
	})
	return nil
}

// SetChainType validates and persists the chain type; the synchronous
// fan-out performs the rebuild (including the mode-switch index refresh).
// Returns the rebuild error, if any.
func (o *Orchestrator) SetChainType(t Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedChainType, t)
	}
	o.store.Update(func(s *settings.Settings) {
		s.DefaultChainType = string(t)
	})
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// PingModel probes a chat descriptor with the two-phase CORS retry and emits
// the "requires CORS" notice exactly once when only the second phase passes.
func (o *Orchestrator) PingModel(ctx context.Context, d model.Descriptor) (bool, error) {
	res, err := o.chats.Ping(ctx, d, o.store.Get())
	if err != nil {
		return false, err
	}
	if res.RequiresCORS {
		o.notify(fmt.Sprintf("Model %q requires the CORS-enabled client; enable CORS in its settings.", d.Key()))
	}
	return res.OK, nil
}

// PingEmbeddingModel probes an embedding descriptor the same way.
func (o *Orchestrator) PingEmbeddingModel(ctx context.Context, d model.Descriptor) (bool, error) {
	res, err := o.embeds.Ping(ctx, d, o.store.Get())
	if err != nil {
		return false, err
	}
	if res.RequiresCORS {
		o.notify(fmt.Sprintf("Model %q requires the CORS-enabled client; enable CORS in its settings.", d.Key()))
	}
	return res.OK, nil
}

// GetRuntimeConfig returns the per-model runtime config; a key without a
// record resolves to the zero value.
func (o *Orchestrator) GetRuntimeConfig(key string) model.RuntimeConfig {
	return model.ConfigForKey(key, o.store.Get().ModelConfigs)
}

// UpdateRuntimeConfig deep-merges partial onto the existing record: fields
// absent from the partial are preserved. The merged record is validated
// before anything is persisted.
func (o *Orchestrator) UpdateRuntimeConfig(key string, partial model.RuntimeConfig) error {
	current := model.ConfigForKey(key, o.store.Get().ModelConfigs)
	merged := model.MergeRuntimeConfig(current, partial)
	if err := model.ValidateRuntimeConfig(merged); err != nil {
		return err
	}
	o.store.Update(func(s *settings.Settings) {
		if s.ModelConfigs == nil {
			s.ModelConfigs = make(map[string]settings.RuntimeConfig)
		}
		s.ModelConfigs[key] = merged
	})
	return nil
}

// RefreshIndex forwards an explicit index refresh request.
func (o *Orchestrator) RefreshIndex(ctx context.Context, force bool) error {
	if o.index == nil {
		return ErrRetrievalUnavailable
	}
	return o.index.Refresh(ctx, force)
}

// Run answers one message with the live chain. A stale or missing chain is
// rebuilt once (self-healing); a missing live chat model short-circuits with
// a system frame instead of an error.
func (o *Orchestrator) Run(ctx context.Context, message string) (<-chan StreamChunk, error) {
	s := o.store.Get()
	t := Type(s.DefaultChainType)

	o.mu.Lock()
	stale := o.state != StateReady || o.chain == nil || o.chain.Type() != t
	o.mu.Unlock()

	if stale {
		o.log.Debug().Str("chain_type", string(t)).Msg("live chain stale, rebuilding before run")
		o.buildChain(ctx, s)
	}

	o.mu.Lock()
	live := o.chain
	err := o.lastErr
	o.mu.Unlock()
	if live == nil {
		if err != nil {
			return nil, err
		}
		return systemStream("No chat model is active. Configure a model in settings."), nil
	}

	if chat, _ := o.chats.Current(); chat == nil {
		return systemStream("No chat model is active. Configure a model and its API key in settings."), nil
	}

	out, runErr := live.Run(ctx, message)
	if runErr != nil {
		o.log.Error().Err(runErr).Str("chain_type", string(live.Type())).Msg("chain run failed")
		return nil, runErr
	}

	if cited, ok := live.(interface{ LastSources() []SourceChunk }); ok {
		sources := cited.LastSources()
		o.mu.Lock()
		o.lastSources = sources
		o.mu.Unlock()
	}
	return out, nil
}

// systemStream emits one system-sender frame followed by done.
func systemStream(message string) <-chan StreamChunk {
	out := make(chan StreamChunk, 2)
	out <- StreamChunk{Type: "system", Delta: message}
	out <- StreamChunk{Type: "done", Done: true}
	close(out)
	return out
}
