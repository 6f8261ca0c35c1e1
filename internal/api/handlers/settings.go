package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/matiasleandrokruk/notepilot/internal/domain/chain"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// SettingsService applies the settings changes that need orchestration side
// effects: default-model activation and chain-type switches.
type SettingsService interface {
	ActivateModel(key string) error
	ActivateEmbeddingModel(key string) error
	SetChainType(t chain.Type) error
}

// Encryptor seals plaintext credentials before they reach the settings file.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
}

// SettingsHandler serves GET/PATCH /settings. Credentials are write-only:
// they come in as plaintext, get encrypted, and never appear in responses.
type SettingsHandler struct {
	store *settings.Store
	svc   SettingsService
	box   Encryptor
}

func NewSettingsHandler(store *settings.Store, svc SettingsService, box Encryptor) *SettingsHandler {
	return &SettingsHandler{store: store, svc: svc, box: box}
}

type descriptorPayload struct {
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	BaseURL    string `json:"base_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	Enabled    bool   `json:"enabled"`
	EnableCORS bool   `json:"enable_cors,omitempty"`
	BuiltIn    bool   `json:"built_in,omitempty"`
	Core       bool   `json:"core,omitempty"`
}

type azureDeploymentPayload struct {
	DeploymentName string `json:"deployment_name"`
	InstanceName   string `json:"instance_name"`
	APIKey         string `json:"api_key,omitempty"`
	APIVersion     string `json:"api_version,omitempty"`
	Enabled        bool   `json:"enabled"`
}

type settingsResponse struct {
	ActiveModels          []descriptorPayload             `json:"active_models"`
	ActiveEmbeddingModels []descriptorPayload             `json:"active_embedding_models"`
	DefaultModelKey       string                          `json:"default_model_key"`
	DefaultEmbeddingKey   string                          `json:"default_embedding_key"`
	ProviderKeys          map[string]bool                 `json:"provider_keys"`
	AzureInstance         string                          `json:"azure_instance,omitempty"`
	AzureAPIKeySet        bool                            `json:"azure_api_key_set"`
	AzureAPIVersion       string                          `json:"azure_api_version,omitempty"`
	AzureDeployments      []azureDeploymentPayload        `json:"azure_deployments,omitempty"`
	ModelConfigs          map[string]runtimeConfigPayload `json:"model_configs"`
	DefaultChainType      string                          `json:"default_chain_type"`
	MaxSourceChunks       int                             `json:"max_source_chunks"`
	AutoIndexStrategy     string                          `json:"auto_index_strategy"`
	UserSystemPrompt      string                          `json:"user_system_prompt,omitempty"`
}

type updateSettingsRequest struct {
	DefaultModelKey       *string                  `json:"default_model_key,omitempty"`
	DefaultEmbeddingKey   *string                  `json:"default_embedding_key,omitempty"`
	DefaultChainType      *string                  `json:"default_chain_type,omitempty"`
	MaxSourceChunks       *int                     `json:"max_source_chunks,omitempty"`
	AutoIndexStrategy     *string                  `json:"auto_index_strategy,omitempty"`
	UserSystemPrompt      *string                  `json:"user_system_prompt,omitempty"`
	ProviderKeys          map[string]string        `json:"provider_keys,omitempty"`
	ActiveModels          []descriptorPayload      `json:"active_models,omitempty"`
	ActiveEmbeddingModels []descriptorPayload      `json:"active_embedding_models,omitempty"`
	AzureInstance         *string                  `json:"azure_instance,omitempty"`
	AzureAPIKey           *string                  `json:"azure_api_key,omitempty"`
	AzureAPIVersion       *string                  `json:"azure_api_version,omitempty"`
	AzureDeployments      []azureDeploymentPayload `json:"azure_deployments,omitempty"`
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, redactSettings(h.store.Get()))
}

func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg, ok := validateSettingsRequest(req); !ok {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	sealed, err := h.sealCredentials(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encrypt credentials")
		return
	}

	h.store.Update(func(s *settings.Settings) {
		applySettingsRequest(s, sealed)
	})

	// Default-selection changes route through the orchestrator so a bad key
	// fails fast instead of being silently repaired.
	if err := h.applySelections(sealed); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, redactSettings(h.store.Get()))
}

// validateSettingsRequest rejects out-of-range document fields before any
// state changes.
func validateSettingsRequest(req updateSettingsRequest) (string, bool) {
	if req.DefaultChainType != nil && !chain.Type(*req.DefaultChainType).Valid() {
		return "unsupported chain type", false
	}
	if req.MaxSourceChunks != nil && *req.MaxSourceChunks < 1 {
		return "max_source_chunks must be at least 1", false
	}
	if req.AutoIndexStrategy != nil {
		switch *req.AutoIndexStrategy {
		case settings.AutoIndexNever, settings.AutoIndexOnStartup, settings.AutoIndexOnModeSwitch:
		default:
			return "unknown auto_index_strategy", false
		}
	}
	return "", true
}

// sealCredentials encrypts every plaintext credential in the request.
func (h *SettingsHandler) sealCredentials(req updateSettingsRequest) (updateSettingsRequest, error) {
	var err error
	for provider, key := range req.ProviderKeys {
		if key == "" {
			continue
		}
		if req.ProviderKeys[provider], err = h.box.Encrypt(key); err != nil {
			return req, err
		}
	}
	if err = sealDescriptorKeys(h.box, req.ActiveModels); err != nil {
		return req, err
	}
	if err = sealDescriptorKeys(h.box, req.ActiveEmbeddingModels); err != nil {
		return req, err
	}
	if req.AzureAPIKey != nil && *req.AzureAPIKey != "" {
		sealedKey, encErr := h.box.Encrypt(*req.AzureAPIKey)
		if encErr != nil {
			return req, encErr
		}
		req.AzureAPIKey = &sealedKey
	}
	for i := range req.AzureDeployments {
		if req.AzureDeployments[i].APIKey == "" {
			continue
		}
		if req.AzureDeployments[i].APIKey, err = h.box.Encrypt(req.AzureDeployments[i].APIKey); err != nil {
			return req, err
		}
	}
	return req, nil
}

func sealDescriptorKeys(box Encryptor, ds []descriptorPayload) error {
	for i := range ds {
		if ds[i].APIKey == "" {
			continue
		}
		sealed, err := box.Encrypt(ds[i].APIKey)
		if err != nil {
			return err
		}
		ds[i].APIKey = sealed
	}
	return nil
}

// applySettingsRequest writes the plain document fields. Default keys and
// chain type are handled by applySelections afterwards.
func applySettingsRequest(s *settings.Settings, req updateSettingsRequest) {
	if req.MaxSourceChunks != nil {
		s.MaxSourceChunks = *req.MaxSourceChunks
	}
	if req.AutoIndexStrategy != nil {
		s.AutoIndexStrategy = *req.AutoIndexStrategy
	}
	if req.UserSystemPrompt != nil {
		s.UserSystemPrompt = *req.UserSystemPrompt
	}
	if len(req.ProviderKeys) > 0 {
		if s.ProviderKeys == nil {
			s.ProviderKeys = map[string]string{}
		}
		for provider, key := range req.ProviderKeys {
			s.ProviderKeys[provider] = key
		}
	}
	if req.ActiveModels != nil {
		s.ActiveModels = descriptorsFromPayload(req.ActiveModels)
	}
	if req.ActiveEmbeddingModels != nil {
		s.ActiveEmbeddingModels = descriptorsFromPayload(req.ActiveEmbeddingModels)
	}
	if req.AzureInstance != nil {
		s.AzureInstance = *req.AzureInstance
	}
	if req.AzureAPIKey != nil {
		s.AzureAPIKey = *req.AzureAPIKey
	}
	if req.AzureAPIVersion != nil {
		s.AzureAPIVersion = *req.AzureAPIVersion
	}
	if req.AzureDeployments != nil {
		deployments := make([]settings.AzureDeployment, 0, len(req.AzureDeployments))
		for _, d := range req.AzureDeployments {
			deployments = append(deployments, settings.AzureDeployment{
				DeploymentName: d.DeploymentName,
				InstanceName:   d.InstanceName,
				APIKey:         d.APIKey,
				APIVersion:     d.APIVersion,
				IsEnabled:      d.Enabled,
			})
		}
		s.AzureDeployments = deployments
	}
}

func (h *SettingsHandler) applySelections(req updateSettingsRequest) error {
	if req.DefaultModelKey != nil {
		if err := h.svc.ActivateModel(*req.DefaultModelKey); err != nil {
			return err
		}
	}
	if req.DefaultEmbeddingKey != nil {
		if err := h.svc.ActivateEmbeddingModel(*req.DefaultEmbeddingKey); err != nil {
			return err
		}
	}
	if req.DefaultChainType != nil {
		if err := h.svc.SetChainType(chain.Type(*req.DefaultChainType)); err != nil {
			return err
		}
	}
	return nil
}

func descriptorsFromPayload(ds []descriptorPayload) []settings.ModelDescriptor {
	out := make([]settings.ModelDescriptor, 0, len(ds))
	for _, d := range ds {
		out = append(out, settings.ModelDescriptor{
			Name:       d.Name,
			Provider:   d.Provider,
			BaseURL:    d.BaseURL,
			APIKey:     d.APIKey,
			Enabled:    d.Enabled,
			EnableCORS: d.EnableCORS,
			IsBuiltIn:  d.BuiltIn,
			Core:       d.Core,
		})
	}
	return out
}

// redactSettings strips credential material from the document before it goes
// out on the wire. Provider keys collapse to a configured/not-configured map.
func redactSettings(s settings.Settings) settingsResponse {
	providerKeys := make(map[string]bool, len(s.ProviderKeys))
	for provider, key := range s.ProviderKeys {
		providerKeys[provider] = key != ""
	}

	configs := make(map[string]runtimeConfigPayload, len(s.ModelConfigs))
	for key, rc := range s.ModelConfigs {
		configs[key] = runtimeConfigToPayload(rc)
	}

	deployments := make([]azureDeploymentPayload, 0, len(s.AzureDeployments))
	for _, d := range s.AzureDeployments {
		deployments = append(deployments, azureDeploymentPayload{
			DeploymentName: d.DeploymentName,
			InstanceName:   d.InstanceName,
			APIVersion:     d.APIVersion,
			Enabled:        d.IsEnabled,
		})
	}

	return settingsResponse{
		ActiveModels:          redactDescriptors(s.ActiveModels),
		ActiveEmbeddingModels: redactDescriptors(s.ActiveEmbeddingModels),
		DefaultModelKey:       s.DefaultModelKey,
		DefaultEmbeddingKey:   s.DefaultEmbeddingKey,
		ProviderKeys:          providerKeys,
		AzureInstance:         s.AzureInstance,
		AzureAPIKeySet:        s.AzureAPIKey != "",
		AzureAPIVersion:       s.AzureAPIVersion,
		AzureDeployments:      deployments,
		ModelConfigs:          configs,
		DefaultChainType:      s.DefaultChainType,
		MaxSourceChunks:       s.MaxSourceChunks,
		AutoIndexStrategy:     s.AutoIndexStrategy,
		UserSystemPrompt:      s.UserSystemPrompt,
	}
}

func redactDescriptors(ds []settings.ModelDescriptor) []descriptorPayload {
	out := make([]descriptorPayload, 0, len(ds))
	for _, d := range ds {
		out = append(out, descriptorPayload{
			Name:       d.Name,
			Provider:   d.Provider,
			BaseURL:    d.BaseURL,
			Enabled:    d.Enabled,
			EnableCORS: d.EnableCORS,
			BuiltIn:    d.IsBuiltIn,
			Core:       d.Core,
		})
	}
	return out
}
