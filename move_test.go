package pimc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture bundles the collaborators most move tests need.
type fixture struct {
	path   *Path
	action *PrimitiveAction
	sc     *SimConstants
	rng    *rand.Rand
	stats  *MoveStatistics
}

// newFixture builds n particles on m slices with the given external
// potential in a periodic cube.
func newFixture(t *testing.T, n, m int, side float64, ext ExternalPotential, c float64, seed int64) *fixture {
	t.Helper()
	box := Box{Side: dVec{side, side, side}}
	sc, err := NewSimConstants(0.1, 0.5, m, 4, 0, c, box)
	require.NoError(t, err)

	init := make([]dVec, n)
	for i := range init {
		init[i] = dVec{0.2 * float64(i), 0, 0}
	}
	p, err := NewPath(m, box, init)
	require.NoError(t, err)

	return &fixture{
		path:   p,
		action: NewPrimitiveAction(p, sc, ext, nil),
		sc:     sc,
		rng:    NewRNG(seed),
		stats:  &MoveStatistics{},
	}
}

// makeWorm opens a worm by direct surgery: head at (2,0), gap slices
// missing before the tail on the same worldline.
func (f *fixture) makeWorm(t *testing.T, gap int) {
	t.Helper()
	head := BeadLocator{2, 0}
	tail := BeadLocator{(2 + gap) % f.path.M, 0}
	if gap == 1 {
		f.path.BreakLink(head)
	} else {
		b := f.path.Next(head)
		for b != tail {
			nb := f.path.Next(b)
			f.path.DelBead(b)
			b = nb
		}
	}
	f.path.Worm = Worm{Head: head, Tail: tail, Exists: true}
	require.NoError(t, f.path.CheckLinks())
}

func TestCounterDiscipline(t *testing.T) {
	f := newFixture(t, 2, 16, 10, FreePotential{}, 1, 1)
	moves := []Move{
		NewCenterOfMassMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewDisplaceMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewStagingMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewCloseMove(f.path, f.action, f.rng, f.sc, f.stats), // gated until Open accepts
		NewOpenMove(f.path, f.action, f.rng, f.sc, f.stats),
	}

	for i := 0; i < 200; i++ {
		mv := moves[i%len(moves)]
		beforeTot := f.stats.TotAttempted
		beforeAcc := f.stats.TotAccepted
		beforeMoveAcc := mv.NumAccepted()

		ok := mv.AttemptMove()

		require.Equal(t, beforeTot+1, f.stats.TotAttempted,
			"%s must count exactly one attempt", mv.Name())
		if ok {
			require.Equal(t, beforeAcc+1, f.stats.TotAccepted)
			require.Equal(t, beforeMoveAcc+1, mv.NumAccepted())
		} else {
			require.Equal(t, beforeAcc, f.stats.TotAccepted)
			require.Equal(t, beforeMoveAcc, mv.NumAccepted())
		}
	}
}

func TestSectorGating(t *testing.T) {
	f := newFixture(t, 2, 16, 10, FreePotential{}, 1, 2)

	offDiagonal := []Move{
		NewCloseMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewRemoveMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewAdvanceHeadMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewRecedeHeadMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewAdvanceTailMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewRecedeTailMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewSwapHeadMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewSwapTailMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewEndStagingMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewMidStagingMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewSwapBreakMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewCanonicalCloseMove(f.path, f.action, f.rng, f.sc, f.stats),
	}
	before := f.path.Checksum()
	for _, mv := range offDiagonal {
		require.Equal(t, OffDiagonal, mv.OperateOnConfig())
		assert.False(t, mv.AttemptMove(), "%s must reject in the diagonal sector", mv.Name())
		assert.Equal(t, before, f.path.Checksum(), "%s touched the path while gated", mv.Name())
	}

	f.makeWorm(t, 3)
	diagonal := []Move{
		NewOpenMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewInsertMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewCanonicalOpenMove(f.path, f.action, f.rng, f.sc, f.stats),
	}
	wormState := f.path.Checksum()
	for _, mv := range diagonal {
		require.Equal(t, Diagonal, mv.OperateOnConfig())
		assert.False(t, mv.AttemptMove(), "%s must reject in the off-diagonal sector", mv.Name())
		assert.Equal(t, wormState, f.path.Checksum(), "%s touched the path while gated", mv.Name())
	}
}

// TestRejectionRestoresPath is the undo-determinism scenario: with a
// viciously stiff well every proposal rejects, and after thousands of
// attempts the configuration digest must be untouched.
func TestRejectionRestoresPath(t *testing.T) {
	f := newFixture(t, 1, 16, 10, HarmonicPotential{Omega: 1e6}, 1, 42)
	displace := NewDisplaceMove(f.path, f.action, f.rng, f.sc, f.stats)
	com := NewCenterOfMassMove(f.path, f.action, f.rng, f.sc, f.stats)
	staging := NewStagingMove(f.path, f.action, f.rng, f.sc, f.stats)
	bisection := NewBisectionMove(f.path, f.action, f.rng, f.sc, f.stats)

	before := f.path.Checksum()
	for i := 0; i < 10000; i++ {
		require.False(t, displace.AttemptMove())
	}
	for i := 0; i < 1000; i++ {
		require.False(t, com.AttemptMove())
		require.False(t, staging.AttemptMove())
		require.False(t, bisection.AttemptMove())
	}
	assert.Equal(t, before, f.path.Checksum())
	require.NoError(t, f.path.CheckLinks())
}

// TestStagingFreeAcceptance: with no potential the bridge proposal
// cancels the kinetic action exactly, so every staging attempt accepts.
func TestStagingFreeAcceptance(t *testing.T) {
	f := newFixture(t, 2, 16, 10, FreePotential{}, 1, 3)
	staging := NewStagingMove(f.path, f.action, f.rng, f.sc, f.stats)

	const n = 2000
	for i := 0; i < n; i++ {
		require.True(t, staging.AttemptMove())
	}
	assert.Equal(t, 1.0, staging.AcceptanceRatio())
	require.NoError(t, f.path.CheckLinks())
}

func TestBisectionLevelAccounting(t *testing.T) {
	f := newFixture(t, 1, 16, 10, HarmonicPotential{Omega: 2}, 1, 4)
	bisection := NewBisectionMove(f.path, f.action, f.rng, f.sc, f.stats)

	for i := 0; i < 3000; i++ {
		bisection.AttemptMove()
	}
	require.NoError(t, f.path.CheckLinks())

	var levelSum uint64
	for n := 0; n <= f.sc.NumLevels; n++ {
		levelSum += bisection.numAttemptedLevel[n]
	}
	assert.GreaterOrEqual(t, levelSum, bisection.NumAttempted())
	assert.Equal(t, bisection.NumAccepted(), bisection.numAcceptedLevel[0],
		"level zero records fully accepted bisections")
	assert.Greater(t, bisection.NumAccepted(), uint64(0))
}

// TestForcedUndoDiagonalMoves drives every diagonal move and then
// forces undoMove regardless of the outcome: an accepted move must roll
// back to its entry state just as faithfully as a rejected one.
func TestForcedUndoDiagonalMoves(t *testing.T) {
	f := newFixture(t, 2, 16, 10, HarmonicPotential{Omega: 1}, 1, 5)

	type undoable interface {
		Move
		undoMove()
	}
	moves := []undoable{
		NewCenterOfMassMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewDisplaceMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewStagingMove(f.path, f.action, f.rng, f.sc, f.stats),
		NewBisectionMove(f.path, f.action, f.rng, f.sc, f.stats),
	}
	for i := 0; i < 500; i++ {
		mv := moves[i%len(moves)]
		before := f.path.Checksum()
		mv.AttemptMove()
		mv.undoMove()
		require.Equal(t, before, f.path.Checksum(),
			"%s forced undo drifted at iteration %d", mv.Name(), i)
	}
	require.NoError(t, f.path.CheckLinks())
}

func TestAcceptanceRatioAccessors(t *testing.T) {
	f := newFixture(t, 1, 16, 10, FreePotential{}, 1, 6)
	mv := NewStagingMove(f.path, f.action, f.rng, f.sc, f.stats)

	assert.Equal(t, 0.0, mv.AcceptanceRatio(), "no attempts yet")
	assert.Equal(t, "staging", mv.Name())
	assert.False(t, mv.VariableLength())

	mv.AttemptMove()
	assert.Equal(t, uint64(1), mv.NumAttempted())
	assert.InDelta(t, 1.0, mv.AcceptanceRatio(), 1e-12)
	assert.InDelta(t, f.stats.TotAcceptanceRatio(),
		float64(f.stats.TotAccepted)/float64(f.stats.TotAttempted), 1e-12)
}
