package ctxkeys

import (
	"context"
	"testing"
)

func TestWithValueAndValue(t *testing.T) {
	t.Parallel()

	ctx := WithValue(context.Background(), Subject, "local")
	if got := Value(ctx, Subject); got != "local" {
		t.Errorf("Value = %q, want %q", got, "local")
	}
}

func TestValue_MissingKeyIsEmpty(t *testing.T) {
	t.Parallel()

	if got := Value(context.Background(), Subject); got != "" {
		t.Errorf("Value on empty context = %q, want empty", got)
	}
}

func TestValue_TypedKeyDoesNotCollideWithString(t *testing.T) {
	t.Parallel()

	//nolint:staticcheck // plain string key on purpose: proving the types differ
	ctx := context.WithValue(context.Background(), "subject", "spoofed")
	if got := Value(ctx, Subject); got != "" {
		t.Errorf("typed key read string-keyed value %q", got)
	}
}
