package model

import (
	"strings"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// Descriptor and RuntimeConfig are the persisted settings types; aliased here
// so the domain layer reads naturally without a second copy of the structs.
type (
	Descriptor    = settings.ModelDescriptor
	RuntimeConfig = settings.RuntimeConfig
)

// SplitKey splits a model key "name|suffix" into its two segments. The suffix
// is normally the provider id; for reasoning-class Azure models it is a
// deployment name instead — that quirk is confined to this function and
// DeploymentForKey, nothing else may re-parse keys.
func SplitKey(key string) (name, suffix string) {
	if i := strings.Index(key, "|"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// DeploymentForKey returns the enabled Azure deployment whose name matches
// the key's suffix segment, if any. A disabled deployment never matches.
func DeploymentForKey(key string, s settings.Settings) (settings.AzureDeployment, bool) {
	_, suffix := SplitKey(key)
	if suffix == "" {
		return settings.AzureDeployment{}, false
	}
	for _, dep := range s.AzureDeployments {
		if dep.IsEnabled && dep.DeploymentName == suffix {
			return dep, true
		}
	}
	return settings.AzureDeployment{}, false
}

// reasoningPrefixes covers the model families that reject temperature
// control and take a completion-token cap plus an effort parameter.
var reasoningPrefixes = []string{"o1", "o3", "o4"}

// IsReasoningModel reports whether the model name belongs to a
// reasoning-class family.
func IsReasoningModel(name string) bool {
	for _, p := range reasoningPrefixes {
		if name == p || strings.HasPrefix(name, p+"-") {
			return true
		}
	}
	return false
}

// BuiltinChatModels is the core chat catalog seeded into fresh settings.
// Core models cannot be disabled or deleted.
func BuiltinChatModels() []Descriptor {
	return []Descriptor{
		{Name: "gpt-4.1", Provider: llm.ProviderOpenAI, Enabled: true, IsBuiltIn: true, Core: true},
		{Name: "gpt-4.1-mini", Provider: llm.ProviderOpenAI, Enabled: true, IsBuiltIn: true},
		{Name: "o1-preview", Provider: llm.ProviderOpenAI, Enabled: true, IsBuiltIn: true},
		{Name: "claude-3-5-sonnet-latest", Provider: llm.ProviderAnthropic, Enabled: true, IsBuiltIn: true},
		{Name: "llama3.2:3b", Provider: llm.ProviderOllama, Enabled: true, IsBuiltIn: true},
	}
}

// BuiltinEmbeddingModels is the core embedding catalog.
func BuiltinEmbeddingModels() []Descriptor {
	return []Descriptor{
		{Name: "text-embedding-3-small", Provider: llm.ProviderOpenAI, Enabled: true, IsBuiltIn: true, Core: true},
		{Name: "nomic-embed-text", Provider: llm.ProviderOllama, Enabled: true, IsBuiltIn: true},
	}
}

// FallbackDefaultKey returns the key of the first enabled built-in model in
// the list, used when the active key no longer resolves.
func FallbackDefaultKey(active []Descriptor) string {
	for _, d := range active {
		if d.Enabled && d.IsBuiltIn {
			return d.Key()
		}
	}
	return ""
}
