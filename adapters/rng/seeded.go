package rng

import (
	"context"
	"math/rand"
)

// SeededAdapter implements ports.RNGPort with math/rand sources derived from a base seed
type SeededAdapter struct{}

// NewSeededAdapter creates the default RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

// ReplicateStream derives a per-replicate seed from the operation name, base seed and index
func (r *SeededAdapter) ReplicateStream(ctx context.Context, name string, seed int64, replicate int) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(mix(seed+int64(hashString(name)), int64(replicate)))), nil
}

// hashString is djb2
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c)
	}
	return hash
}

// mix spreads consecutive replicate indexes apart (splitmix64 finalizer)
func mix(seed, i int64) int64 {
	z := uint64(seed) + uint64(i+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}
