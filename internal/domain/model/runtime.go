package model

// Validation bounds for runtime config values. Checked before any network
// call so a bad form value never reaches a provider.
const (
	MinRequestTimeoutMS = 1
	MaxRequestTimeoutMS = 120000
	MinReasoningEffort  = 0
	MaxReasoningEffort  = 100
)

// MergeRuntimeConfig overlays the non-nil fields of partial onto base.
// Fields absent from the partial are preserved untouched — a partial update
// can never erase a previously configured value.
func MergeRuntimeConfig(base, partial RuntimeConfig) RuntimeConfig {
	out := base
	if partial.Temperature != nil {
		out.Temperature = partial.Temperature
	}
	if partial.MaxTokens != nil {
		out.MaxTokens = partial.MaxTokens
	}
	if partial.MaxCompletionTokens != nil {
		out.MaxCompletionTokens = partial.MaxCompletionTokens
	}
	if partial.ReasoningEffort != nil {
		out.ReasoningEffort = partial.ReasoningEffort
	}
	if partial.ContextTurns != nil {
		out.ContextTurns = partial.ContextTurns
	}
	if partial.RequestTimeoutMS != nil {
		out.RequestTimeoutMS = partial.RequestTimeoutMS
	}
	return out
}

// ValidateRuntimeConfig checks bounds on every set field. Unset (nil) fields
// are always valid.
func ValidateRuntimeConfig(rc RuntimeConfig) error {
	if rc.RequestTimeoutMS != nil {
		if v := *rc.RequestTimeoutMS; v < MinRequestTimeoutMS || v > MaxRequestTimeoutMS {
			return &ValidationError{Field: "request_timeout_ms", Value: v, Reason: "must be in [1, 120000]"}
		}
	}
	if rc.ReasoningEffort != nil {
		if v := *rc.ReasoningEffort; v < MinReasoningEffort || v > MaxReasoningEffort {
			return &ValidationError{Field: "reasoning_effort", Value: v, Reason: "must be in [0, 100]"}
		}
	}
	if rc.MaxTokens != nil && *rc.MaxTokens < 0 {
		return &ValidationError{Field: "max_tokens", Value: *rc.MaxTokens, Reason: "must not be negative"}
	}
	if rc.MaxCompletionTokens != nil && *rc.MaxCompletionTokens < 0 {
		return &ValidationError{Field: "max_completion_tokens", Value: *rc.MaxCompletionTokens, Reason: "must not be negative"}
	}
	if rc.ContextTurns != nil && *rc.ContextTurns < 0 {
		return &ValidationError{Field: "context_turns", Value: *rc.ContextTurns, Reason: "must not be negative"}
	}
	return nil
}

// ConfigForKey returns the runtime config stored for key. A missing entry
// resolves to the zero value, never an error.
func ConfigForKey(key string, all map[string]RuntimeConfig) RuntimeConfig {
	return all[key]
}
