package model

import (
	"errors"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// ============================================================================
// MergeRuntimeConfig
// ============================================================================

func TestMergeRuntimeConfig_PartialPreservesUnspecifiedFields(t *testing.T) {
	t.Parallel()

	base := RuntimeConfig{
		Temperature:      floatPtr(0.7),
		MaxTokens:        intPtr(4096),
		ContextTurns:     intPtr(15),
		RequestTimeoutMS: intPtr(30000),
	}
	partial := RuntimeConfig{Temperature: floatPtr(0.2)}

	merged := MergeRuntimeConfig(base, partial)

	if *merged.Temperature != 0.2 {
		t.Errorf("expected overlaid temperature 0.2, got %v", *merged.Temperature)
	}
	if merged.MaxTokens == nil || *merged.MaxTokens != 4096 {
		t.Error("max tokens absent from partial must be preserved")
	}
	if merged.ContextTurns == nil || *merged.ContextTurns != 15 {
		t.Error("context turns absent from partial must be preserved")
	}
	if merged.RequestTimeoutMS == nil || *merged.RequestTimeoutMS != 30000 {
		t.Error("timeout absent from partial must be preserved")
	}
}

func TestMergeRuntimeConfig_EmptyPartialIsIdentity(t *testing.T) {
	t.Parallel()

	base := RuntimeConfig{MaxCompletionTokens: intPtr(2048), ReasoningEffort: intPtr(50)}
	merged := MergeRuntimeConfig(base, RuntimeConfig{})

	if merged.MaxCompletionTokens == nil || *merged.MaxCompletionTokens != 2048 {
		t.Error("empty partial must preserve MaxCompletionTokens")
	}
	if merged.ReasoningEffort == nil || *merged.ReasoningEffort != 50 {
		t.Error("empty partial must preserve ReasoningEffort")
	}
}

func TestMergeRuntimeConfig_OntoZeroBase(t *testing.T) {
	t.Parallel()

	merged := MergeRuntimeConfig(RuntimeConfig{}, RuntimeConfig{MaxTokens: intPtr(1024)})
	if merged.MaxTokens == nil || *merged.MaxTokens != 1024 {
		t.Error("partial onto zero base must set the field")
	}
	if merged.Temperature != nil {
		t.Error("fields absent from both must stay nil")
	}
}

// ============================================================================
// ValidateRuntimeConfig boundaries
// ============================================================================

func TestValidateRuntimeConfig_Boundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		rc      RuntimeConfig
		wantErr bool
	}{
		{"zero value", RuntimeConfig{}, false},
		{"timeout at lower bound", RuntimeConfig{RequestTimeoutMS: intPtr(1)}, false},
		{"timeout at upper bound", RuntimeConfig{RequestTimeoutMS: intPtr(120000)}, false},
		{"timeout zero", RuntimeConfig{RequestTimeoutMS: intPtr(0)}, true},
		{"timeout above range", RuntimeConfig{RequestTimeoutMS: intPtr(120001)}, true},
		{"effort at lower bound", RuntimeConfig{ReasoningEffort: intPtr(0)}, false},
		{"effort at upper bound", RuntimeConfig{ReasoningEffort: intPtr(100)}, false},
		{"effort negative", RuntimeConfig{ReasoningEffort: intPtr(-1)}, true},
		{"effort above range", RuntimeConfig{ReasoningEffort: intPtr(101)}, true},
		{"negative max tokens", RuntimeConfig{MaxTokens: intPtr(-1)}, true},
		{"negative completion tokens", RuntimeConfig{MaxCompletionTokens: intPtr(-1)}, true},
		{"negative context turns", RuntimeConfig{ContextTurns: intPtr(-1)}, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRuntimeConfig(tc.rc)
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if tc.wantErr {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestConfigForKey_MissingKeyResolvesToZeroValue(t *testing.T) {
	t.Parallel()

	rc := ConfigForKey("ghost|openai", map[string]RuntimeConfig{})
	if rc.Temperature != nil || rc.MaxTokens != nil {
		t.Error("missing key must resolve to the zero value")
	}
}
