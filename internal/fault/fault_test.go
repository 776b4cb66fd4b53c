package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_Is(t *testing.T) {
	timeout := Errorf(KindTimeout, "upload", "no request within %s", "10s")
	wrapped := fmt.Errorf("deploying mission: %w", timeout)

	if !errors.Is(wrapped, ErrTimeout) {
		t.Errorf("expected wrapped error to match ErrTimeout")
	}
	if errors.Is(wrapped, ErrValidation) {
		t.Errorf("timeout must not match ErrValidation")
	}
	if !errors.Is(wrapped, timeout) {
		t.Errorf("expected wrapped error to match its own value")
	}
	if got := KindOf(wrapped); got != KindTimeout {
		t.Errorf("KindOf: expected %s, got %s", KindTimeout, got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(KindIO, "op", nil) != nil {
		t.Fatalf("wrapping nil must return nil")
	}

	err := Wrap(KindCancelled, "upload", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cause to be reachable")
	}
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled")
	}
	if err.Error() != "upload: context canceled" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("expected unknown kind, got %s", got)
	}
}
