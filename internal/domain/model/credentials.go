package model

import (
	"fmt"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
	"github.com/matiasleandrokruk/notepilot/internal/infra/secrets"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// Decryptor opens "enc_" credential envelopes from the settings document.
type Decryptor interface {
	Decrypt(value string) (string, error)
}

// CredentialResolver determines which API key applies to a descriptor:
// model-specific override > provider default > "". Pure-local providers
// always resolve to the llm.LocalCredential sentinel so presence checks
// succeed without a key.
type CredentialResolver struct {
	adapters *llm.AdapterSet
	box      Decryptor
}

// NewCredentialResolver creates a resolver. box may be nil when no encrypted
// values exist (tests); decrypting an envelope then fails.
func NewCredentialResolver(adapters *llm.AdapterSet, box Decryptor) *CredentialResolver {
	return &CredentialResolver{adapters: adapters, box: box}
}

// Resolve returns the credential for d, decrypted when stored sealed.
// A key with a deployment suffix resolves strictly from that deployment's
// record, never from the global Azure fields.
func (r *CredentialResolver) Resolve(d Descriptor, s settings.Settings) (string, error) {
	if r.adapters.IsLocal(d.Provider) {
		return llm.LocalCredential, nil
	}

	if dep, ok := DeploymentForKey(d.Key(), s); ok {
		return r.open(dep.APIKey, d.Key())
	}

	key := d.APIKey
	if key == "" {
		key = s.ProviderKeys[d.Provider]
	}
	if key == "" && d.Provider == llm.ProviderAzure {
		key = s.AzureAPIKey
	}
	if key == "" {
		return "", nil
	}
	return r.open(key, d.Key())
}

// open decrypts value when it carries the envelope prefix.
func (r *CredentialResolver) open(value, key string) (string, error) {
	if !secrets.IsEncrypted(value) {
		return value, nil
	}
	if r.box == nil {
		return "", fmt.Errorf("model: credential for %q is sealed and no decryptor is configured", key)
	}
	plain, err := r.box.Decrypt(value)
	if err != nil {
		return "", fmt.Errorf("model: credential for %q: %w", key, err)
	}
	return plain, nil
}
