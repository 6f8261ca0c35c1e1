// Package settings holds the user-facing configuration document and the
// reactive store that fans out changes to the model registries and the chain
// orchestrator. The document persists as YAML; everything derived from it
// (live clients, chains) is rebuilt on change, never stored here.
package settings

// ModelDescriptor identifies one configured model. The identity key is
// Name + "|" + Provider; for Azure the deployment name stands in for the
// provider segment.
type ModelDescriptor struct {
	Name       string `yaml:"name"`
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Enabled    bool   `yaml:"enabled"`
	EnableCORS bool   `yaml:"enable_cors,omitempty"`
	IsBuiltIn  bool   `yaml:"built_in,omitempty"`
	Core       bool   `yaml:"core,omitempty"`
}

// Key returns the registry identity for this descriptor.
func (d ModelDescriptor) Key() string {
	return d.Name + "|" + d.Provider
}

// RuntimeConfig is a per-model override document. All fields are pointers:
// nil means "not specified", so a partial update never erases the base value.
type RuntimeConfig struct {
	Temperature         *float64 `yaml:"temperature,omitempty"`
	MaxTokens           *int     `yaml:"max_tokens,omitempty"`
	MaxCompletionTokens *int     `yaml:"max_completion_tokens,omitempty"`
	ReasoningEffort     *int     `yaml:"reasoning_effort,omitempty"`
	ContextTurns        *int     `yaml:"context_turns,omitempty"`
	RequestTimeoutMS    *int     `yaml:"request_timeout_ms,omitempty"`
}

// AzureDeployment is one named deployment under an Azure OpenAI instance.
// A descriptor keyed "o1-preview|my-deployment" resolves against the matching
// enabled entry here; descriptors without a matching entry fall back to the
// instance-level Azure fields on Settings.
type AzureDeployment struct {
	DeploymentName string `yaml:"deployment_name"`
	InstanceName   string `yaml:"instance_name"`
	APIKey         string `yaml:"api_key,omitempty"`
	APIVersion     string `yaml:"api_version,omitempty"`
	IsEnabled      bool   `yaml:"enabled"`
}

// Auto-index strategies for the vault index.
const (
	AutoIndexNever        = "never"
	AutoIndexOnStartup    = "on startup"
	AutoIndexOnModeSwitch = "on mode switch"
)

// Settings is the full configuration document.
type Settings struct {
	ActiveModels          []ModelDescriptor        `yaml:"active_models"`
	ActiveEmbeddingModels []ModelDescriptor        `yaml:"active_embedding_models"`
	DefaultModelKey       string                   `yaml:"default_model_key"`
	DefaultEmbeddingKey   string                   `yaml:"default_embedding_key"`
	ProviderKeys          map[string]string        `yaml:"provider_keys,omitempty"`
	AzureInstance         string                   `yaml:"azure_instance,omitempty"`
	AzureAPIKey           string                   `yaml:"azure_api_key,omitempty"`
	AzureAPIVersion       string                   `yaml:"azure_api_version,omitempty"`
	AzureDeploymentName   string                   `yaml:"azure_deployment_name,omitempty"`
	AzureDeployments      []AzureDeployment        `yaml:"azure_deployments,omitempty"`
	ModelConfigs          map[string]RuntimeConfig `yaml:"model_configs,omitempty"`
	DefaultChainType      string                   `yaml:"default_chain_type"`
	MaxSourceChunks       int                      `yaml:"max_source_chunks"`
	AutoIndexStrategy     string                   `yaml:"auto_index_strategy"`
	UserSystemPrompt      string                   `yaml:"user_system_prompt,omitempty"`
}

// Default returns the document used when no settings file exists yet.
// Model lists start empty; the caller seeds the built-in catalog.
func Default() Settings {
	return Settings{
		ProviderKeys:      map[string]string{},
		ModelConfigs:      map[string]RuntimeConfig{},
		DefaultChainType:  "llm_chain",
		MaxSourceChunks:   3,
		AutoIndexStrategy: AutoIndexNever,
	}
}

// Clone returns a deep copy; mutating the copy never aliases the original.
func (s Settings) Clone() Settings {
	out := s
	out.ActiveModels = append([]ModelDescriptor(nil), s.ActiveModels...)
	out.ActiveEmbeddingModels = append([]ModelDescriptor(nil), s.ActiveEmbeddingModels...)
	out.AzureDeployments = append([]AzureDeployment(nil), s.AzureDeployments...)
	if s.ProviderKeys != nil {
		out.ProviderKeys = make(map[string]string, len(s.ProviderKeys))
		for k, v := range s.ProviderKeys {
			out.ProviderKeys[k] = v
		}
	}
	if s.ModelConfigs != nil {
		out.ModelConfigs = make(map[string]RuntimeConfig, len(s.ModelConfigs))
		for k, v := range s.ModelConfigs {
			out.ModelConfigs[k] = v
		}
	}
	return out
}

// EnabledChatModels filters ActiveModels down to enabled descriptors.
func (s Settings) EnabledChatModels() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(s.ActiveModels))
	for _, d := range s.ActiveModels {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// normalizeDefaults repairs dangling default keys after a mutation: when the
// default chat model is no longer in the enabled list, reassign to the next
// enabled model, or clear. Returns true when a repair happened.
func (s *Settings) normalizeDefaults() bool {
	repaired := false
	if !containsEnabledKey(s.ActiveModels, s.DefaultModelKey) {
		s.DefaultModelKey = firstEnabledKey(s.ActiveModels)
		repaired = true
	}
	if !containsEnabledKey(s.ActiveEmbeddingModels, s.DefaultEmbeddingKey) {
		s.DefaultEmbeddingKey = firstEnabledKey(s.ActiveEmbeddingModels)
		repaired = true
	}
	return repaired
}

func containsEnabledKey(ds []ModelDescriptor, key string) bool {
	if key == "" {
		return len(ds) == 0 || firstEnabledKey(ds) == ""
	}
	for _, d := range ds {
		if d.Enabled && d.Key() == key {
			return true
		}
	}
	return false
}

func firstEnabledKey(ds []ModelDescriptor) string {
	for _, d := range ds {
		if d.Enabled {
			return d.Key()
		}
	}
	return ""
}
