// Package model resolves configured model descriptors into live provider
// clients: credential resolution, provider-specific parameter mapping, and
// the chat/embedding registries the chain orchestrator activates models
// through.
package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry lookups. Callers match with errors.Is.
var (
	// ErrNoSuchModel — the model key is not in the registry map.
	ErrNoSuchModel = errors.New("model: no such model")

	// ErrMissingCredential — the descriptor resolved to no usable credential;
	// activation fails fast, no network call is made.
	ErrMissingCredential = errors.New("model: missing credential")
)

// ConstructionError wraps an adapter constructor failure. The previous live
// client, if any, remains active.
type ConstructionError struct {
	Key string
	Err error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("model: construct %q: %v", e.Key, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// ValidationError reports an out-of-range runtime config value before any
// network call happens.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
