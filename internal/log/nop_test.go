package log

import (
	"context"
	"fmt"
	"testing"
)

func TestNop_AllMethodsSafe(t *testing.T) {
	l := Nop()
	ctx := context.Background()

	l.Debug(ctx, "msg", "k", "v")
	l.Info(ctx, "msg", "k", "v")
	l.Warn(ctx, "msg", "k", "v")
	l.Error(ctx, fmt.Errorf("err"), "msg", "k", "v")
	l.Error(ctx, nil, "msg with nil error")

	if err := l.Sync(); err != nil {
		t.Fatalf("Nop Sync should return nil, got: %v", err)
	}
}

func TestNop_WithChaining(t *testing.T) {
	l := Nop()

	chained := l.With("a", 1).With("b", 2).With("orphan")
	if chained == nil {
		t.Fatal("chained With returned nil")
	}
	chained.Info(context.Background(), "deeply chained")
}
