package database

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyAcquireErrorSaturatedPool(t *testing.T) {
	err := classifyAcquireError(context.Background(), context.DeadlineExceeded)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("expected ErrPoolExhausted for an acquire deadline, got %v", err)
	}
}

func TestClassifyAcquireErrorCallerGaveUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Even a deadline error is the caller's own when their context is dead.
	err := classifyAcquireError(ctx, context.DeadlineExceeded)
	if errors.Is(err, ErrPoolExhausted) {
		t.Error("caller cancellation must not be reported as pool exhaustion")
	}
}

func TestClassifyAcquireErrorPassthrough(t *testing.T) {
	boom := errors.New("connection reset")
	if err := classifyAcquireError(context.Background(), boom); !errors.Is(err, boom) {
		t.Errorf("expected unrelated errors to pass through, got %v", err)
	}
}
