package rng

import (
	"context"
	"testing"

	"sherockets/ports"
)

var _ ports.RNGPort = (*SeededAdapter)(nil)

func TestReplicateStream_Deterministic(t *testing.T) {
	ctx := context.Background()
	a := NewSeededAdapter()

	r1, err := a.ReplicateStream(ctx, "bootstrap", 42, 3)
	if err != nil {
		t.Fatalf("ReplicateStream error: %v", err)
	}
	r2, _ := a.ReplicateStream(ctx, "bootstrap", 42, 3)
	for i := 0; i < 10; i++ {
		if x, y := r1.Int63(), r2.Int63(); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
}

func TestReplicateStream_DistinctReplicates(t *testing.T) {
	ctx := context.Background()
	a := NewSeededAdapter()

	seen := make(map[int64]int)
	for i := 0; i < 100; i++ {
		r, _ := a.ReplicateStream(ctx, "bootstrap", 42, i)
		first := r.Int63()
		if prev, dup := seen[first]; dup {
			t.Fatalf("replicates %d and %d share a first draw", prev, i)
		}
		seen[first] = i
	}
}

func TestReplicateStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSeededAdapter().ReplicateStream(ctx, "x", 1, 0); err == nil {
		t.Error("Expected error from cancelled context")
	}
}
