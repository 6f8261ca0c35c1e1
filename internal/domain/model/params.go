package model

import (
	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// ResolveParams maps (descriptor, runtime config, settings, resolved
// credential) onto provider construction params. Pure and deterministic:
// identical inputs always yield an identical Params value, so the
// orchestrator can call it redundantly on every change notification.
//
// Rules, in priority order:
//  1. reasoning-class models force Temperature=1, move the token cap to
//     MaxCompletionTokens (never MaxTokens) and carry ReasoningEffort as an
//     opaque extra;
//  2. a deployment-suffixed key resolves Azure fields strictly from the
//     matching enabled deployment; other Azure descriptors use the global
//     Azure settings;
//  3. EnableCORS selects the alternate HTTP transport at construction and is
//     never mutated afterward.
func ResolveParams(d Descriptor, rc RuntimeConfig, s settings.Settings, credential string) llm.Params {
	p := llm.Params{
		Model:      d.Name,
		Provider:   d.Provider,
		BaseURL:    d.BaseURL,
		APIKey:     credential,
		EnableCORS: d.EnableCORS,
	}

	p.Temperature = rc.Temperature
	if rc.MaxTokens != nil {
		p.MaxTokens = *rc.MaxTokens
	}
	if rc.RequestTimeoutMS != nil {
		p.RequestTimeoutMS = *rc.RequestTimeoutMS
	}

	if IsReasoningModel(d.Name) {
		one := 1.0
		p.Temperature = &one
		p.MaxTokens = 0
		if rc.MaxCompletionTokens != nil {
			p.MaxCompletionTokens = *rc.MaxCompletionTokens
		} else if rc.MaxTokens != nil {
			// Legacy configs carry the cap in MaxTokens; reasoning models
			// only accept the completion-token field.
			p.MaxCompletionTokens = *rc.MaxTokens
		}
		p.ReasoningEffort = rc.ReasoningEffort
	}

	if dep, ok := DeploymentForKey(d.Key(), s); ok {
		p.Provider = llm.ProviderAzure
		p.AzureInstance = dep.InstanceName
		p.AzureDeployment = dep.DeploymentName
		p.AzureAPIVersion = dep.APIVersion
	} else if d.Provider == llm.ProviderAzure {
		p.AzureInstance = s.AzureInstance
		p.AzureDeployment = s.AzureDeploymentName
		p.AzureAPIVersion = s.AzureAPIVersion
	}

	return p
}

// VendorFor returns the adapter-table provider id a descriptor constructs
// through, or "" when the provider is unrecognized. A deployment-suffixed
// key routes to the Azure adapter even though its provider segment is a
// deployment name.
func VendorFor(d Descriptor, s settings.Settings, known func(provider string) bool) string {
	if known(d.Provider) {
		return d.Provider
	}
	if _, ok := DeploymentForKey(d.Key(), s); ok {
		return llm.ProviderAzure
	}
	return ""
}
