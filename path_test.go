package pimc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPath(t *testing.T, m, n int, side float64) *Path {
	t.Helper()
	init := make([]dVec, n)
	for i := range init {
		init[i] = dVec{0.1 * float64(i), 0, 0}
	}
	p, err := NewPath(m, Box{Side: dVec{side, side, side}}, init)
	require.NoError(t, err)
	require.NoError(t, p.CheckLinks())
	return p
}

func TestNewPathStructure(t *testing.T) {
	p := testPath(t, 8, 3, 10)

	assert.Equal(t, 24, p.NumBeads())
	assert.InDelta(t, 3.0, p.TrueParticles(), 1e-12)
	for s := 0; s < 8; s++ {
		assert.Equal(t, 3, p.NumBeadsAtSlice(s))
	}

	// Worldlines close in imaginary time on the same slot.
	b := BeadLocator{0, 1}
	cur := b
	for i := 0; i < 8; i++ {
		cur = p.Next(cur)
	}
	assert.Equal(t, b, cur)
}

func TestPathSurgery(t *testing.T) {
	p := testPath(t, 8, 2, 10)

	b := BeadLocator{3, 0}
	nb := p.Next(b)
	p.BreakLink(b)
	assert.True(t, p.Next(b).None())
	assert.True(t, p.Prev(nb).None())

	p.MakeLink(b, nb)
	assert.Equal(t, nb, p.Next(b))
	assert.Equal(t, b, p.Prev(nb))
	require.NoError(t, p.CheckLinks())
}

func TestDelAndRestoreBead(t *testing.T) {
	p := testPath(t, 8, 2, 10)
	before := p.Checksum()

	b := BeadLocator{4, 1}
	pb, nb := p.Prev(b), p.Next(b)
	pos := p.Pos(b)

	p.DelBead(b)
	assert.False(t, p.BeadOn(b))
	assert.Equal(t, 15, p.NumBeads())
	assert.True(t, p.Next(pb).None())
	assert.True(t, p.Prev(nb).None())

	// Stable slots: restoring the same slot and links recovers the
	// configuration exactly.
	p.AddBeadAt(b, pos)
	p.MakeLink(pb, b)
	p.MakeLink(b, nb)
	assert.Equal(t, before, p.Checksum())
	require.NoError(t, p.CheckLinks())
}

func TestAddBeadReusesSlots(t *testing.T) {
	p := testPath(t, 4, 2, 10)

	b := BeadLocator{2, 0}
	p.DelBead(b)
	got := p.AddBead(2, dVec{1, 2, 3})
	assert.Equal(t, b, got, "lowest free slot should be reused")

	// A full slice grows.
	g := p.AddBead(2, dVec{0, 0, 0})
	assert.Equal(t, 2, g.Ptcl)
	assert.Equal(t, 3, p.SlotsAtSlice(2))
	assert.Equal(t, 3, p.NumBeadsAtSlice(2))
}

func TestChecksumSensitivity(t *testing.T) {
	p := testPath(t, 8, 2, 10)
	base := p.Checksum()

	assert.Equal(t, base, p.Checksum(), "checksum must be deterministic")

	b := BeadLocator{1, 0}
	orig := p.Pos(b)
	p.SetPos(b, orig.Add(dVec{1e-13, 0, 0}))
	assert.NotEqual(t, base, p.Checksum(), "positions enter at full precision")
	p.SetPos(b, orig)
	assert.Equal(t, base, p.Checksum())

	p.Worm = Worm{Head: b, Tail: b, Exists: true}
	assert.NotEqual(t, base, p.Checksum(), "worm state enters the digest")
	p.Worm = Worm{}
	assert.Equal(t, base, p.Checksum())
}

func TestWormGapAndLength(t *testing.T) {
	p := testPath(t, 8, 2, 10)
	p.Worm = Worm{Head: BeadLocator{2, 0}, Tail: BeadLocator{5, 0}, Exists: true}
	assert.Equal(t, 3, p.WormGap())
	assert.Equal(t, 5, p.WormLength())

	p.Worm = Worm{Head: BeadLocator{4, 0}, Tail: BeadLocator{4, 1}, Exists: true}
	assert.Equal(t, 8, p.WormGap())
	assert.Equal(t, 8, p.WormLength())
}

func TestCheckLinksDetectsCorruption(t *testing.T) {
	p := testPath(t, 4, 2, 10)

	// A unilateral pointer overwrite breaks reciprocity.
	p.SetNext(BeadLocator{0, 0}, BeadLocator{1, 1})
	assert.Error(t, p.CheckLinks())
}

func TestCheckLinksWorm(t *testing.T) {
	p := testPath(t, 8, 2, 10)

	head := BeadLocator{2, 0}
	tail := BeadLocator{4, 0}
	p.DelBead(BeadLocator{3, 0})
	p.Worm = Worm{Head: head, Tail: tail, Exists: true}
	require.NoError(t, p.CheckLinks())

	// Claiming the diagonal sector with dangling ends must fail.
	p.Worm = Worm{}
	assert.Error(t, p.CheckLinks())
}

func TestRandomBeadUniformOverActive(t *testing.T) {
	p := testPath(t, 4, 3, 10)
	p.DelBead(BeadLocator{1, 1})
	rng := NewRNG(11)
	for i := 0; i < 500; i++ {
		b := p.RandomBead(rng)
		require.True(t, p.BeadOn(b))
	}
}

func TestNewCyclicPath(t *testing.T) {
	init := []dVec{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}
	p, err := NewCyclicPath(8, Box{Side: dVec{10, 10, 10}}, init)
	require.NoError(t, err)
	require.NoError(t, p.CheckLinks())

	// A single 3-cycle: returning to the start takes 3*M links.
	start := BeadLocator{0, 0}
	cur := start
	steps := 0
	for {
		cur = p.Next(cur)
		steps++
		if cur == start {
			break
		}
	}
	assert.Equal(t, 3*8, steps)
}
