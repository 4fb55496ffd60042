package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic resampling
type RNGPort interface {
	// ReplicateStream creates an independent stream for one replicate of a resampling run,
	// so results do not depend on which worker picks up the replicate
	ReplicateStream(ctx context.Context, name string, seed int64, replicate int) (*rand.Rand, error)
}
