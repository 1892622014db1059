package pimc

import (
	"math/rand"

	"github.com/seehuhn/mt19937"
)

// NewRNG returns a Mersenne-Twister backed generator seeded with seed.
// Moves consume draws in a fixed order, so replaying a seed reproduces
// the full trajectory.
func NewRNG(seed int64) *rand.Rand {
	src := mt19937.New()
	src.Seed(seed)
	return rand.New(src)
}
