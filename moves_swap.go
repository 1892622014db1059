package pimc

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// swapMoveBase holds the pivot-selection machinery shared by SwapHead
// and SwapTail: the candidate list, the cumulative distribution over
// free-particle weights, and its normalization.
type swapMoveBase struct {
	moveBase
	swapLength int

	candidates []BeadLocator
	cumulant   []float64

	pivot, swap BeadLocator
	sigmaSwap   float64
}

func newSwapMoveBase(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics, name string) swapMoveBase {
	return swapMoveBase{
		moveBase:   newMoveBase(p, a, rng, sc, stats, name, OffDiagonal, false),
		swapLength: 1 << sc.NumLevels,
	}
}

// pivotNorm sums the free-particle weights between end and every active
// bead at the candidate slice. dir selects the search direction:
//
//	dir = +1: candidates sit swapLength slices after end (head moves,
//	          where the worm grows forward onto another worldline);
//	dir = -1: candidates sit swapLength slices before end (tail moves,
//	          where the rewiring reaches backward in imaginary time).
//
// When fill is true the per-candidate weights are kept in cumulant for
// subsequent tower sampling; otherwise only the normalization is
// computed (the reverse-move factor).
func (m *swapMoveBase) pivotNorm(end BeadLocator, dir int, fill bool) float64 {
	s := (end.Slice + dir*m.swapLength) % m.consts.M
	if s < 0 {
		s += m.consts.M
	}
	if fill {
		m.candidates = m.candidates[:0]
		m.cumulant = m.cumulant[:0]
	}
	total := 0.0
	for i := 0; i < m.path.SlotsAtSlice(s); i++ {
		b := BeadLocator{s, i}
		if !m.path.BeadOn(b) {
			continue
		}
		rho := m.action.RhoFree(end, b, m.swapLength)
		total += rho
		if fill {
			m.candidates = append(m.candidates, b)
			m.cumulant = append(m.cumulant, rho)
		}
	}
	return total
}

// selectPivotBead tower-samples the pivot from the weights gathered by
// pivotNorm. The cumulant is normalized in place.
func (m *swapMoveBase) selectPivotBead(total float64) BeadLocator {
	floats.CumSum(m.cumulant, m.cumulant)
	floats.Scale(1.0/total, m.cumulant)
	m.cumulant[len(m.cumulant)-1] = 1.0
	idx := sort.SearchFloat64s(m.cumulant, m.rng.Float64())
	if idx >= len(m.candidates) {
		idx = len(m.candidates) - 1
	}
	return m.candidates[idx]
}

// ----------------------------------------------------------------------
// SwapHead
// ----------------------------------------------------------------------

// SwapHeadMove reconnects the worm head onto another worldline: a pivot
// bead swapLength slices ahead is drawn from the free-particle CDF, the
// worldline through the pivot is cut at the head's slice, the detached
// segment is respliced onto the head, and its interior is restaged by a
// winding-aware bridge. The upstream cut bead becomes the new head.
// Together with Open/Close this generates all bosonic permutation
// cycles.
type SwapHeadMove struct {
	swapMoveBase
	sigmaHead float64
	nextSwap  BeadLocator
	interior  []BeadLocator
	oldHead   BeadLocator
	relinked  bool
	dirty     bool
}

// NewSwapHeadMove constructs the move against shared collaborators.
func NewSwapHeadMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *SwapHeadMove {
	return &SwapHeadMove{
		swapMoveBase: newSwapMoveBase(p, a, rng, sc, stats, "swap head"),
	}
}

// AttemptMove implements Move.
func (m *SwapHeadMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	m.relinked = false
	if m.wrongSector() || m.swapLength >= m.consts.M {
		return false
	}
	head := m.path.Worm.Head
	m.oldHead = head

	m.sigmaSwap = m.pivotNorm(head, +1, true)
	if m.sigmaSwap <= 0 {
		return false
	}
	m.pivot = m.selectPivotBead(m.sigmaSwap)

	// The bead the pivot's worldline occupies on the head's slice; the
	// walk fails if the segment crosses the worm tail.
	m.swap = m.walk(m.pivot, m.swapLength, -1)
	if m.swap.None() || m.swap == m.path.Worm.Tail {
		return false
	}

	// Normalization of the reverse move: the new head (= swap) against
	// the same pivot slice. Endpoint slices are untouched by the
	// restaging, so this is valid before any mutation.
	m.sigmaHead = m.pivotNorm(m.swap, +1, false)
	if m.sigmaHead <= 0 {
		return false
	}

	// Old action of the interior beads on the original chain.
	m.interior = m.interior[:0]
	m.oldV = 0
	for b := m.path.Next(m.swap); b != m.pivot; b = m.path.Next(b) {
		m.interior = append(m.interior, b)
		m.oldV += m.action.PotentialActionBead(b)
	}
	m.originalPos = ensurePos(m.originalPos, len(m.interior))
	for i, b := range m.interior {
		m.originalPos[i] = m.path.Pos(b)
	}

	// Resplice: the detached segment now hangs off the old head.
	m.nextSwap = m.path.Next(m.swap)
	m.path.BreakLink(m.swap)
	m.path.MakeLink(head, m.nextSwap)
	m.relinked = true
	m.dirty = true

	prev := head
	for k := 1; k < m.swapLength; k++ {
		b := m.path.Next(prev)
		r, _, _, ok := m.newStagingPositionW(prev, m.pivot, m.swapLength, k)
		if !ok {
			m.undoMove()
			return false
		}
		m.path.SetPos(b, r)
		prev = b
	}

	m.newV = 0
	for b := m.path.Next(head); b != m.pivot; b = m.path.Next(b) {
		m.newV += m.action.PotentialActionBead(b)
	}
	m.deltaAction = m.newV - m.oldV

	logA := math.Log(m.sigmaSwap) - math.Log(m.sigmaHead) - m.deltaAction
	if m.metropolis(logA) {
		m.path.Worm.Head = m.swap
		m.keep()
		return true
	}
	m.undoMove()
	return false
}

func (m *SwapHeadMove) undoMove() {
	if !m.dirty {
		return
	}
	if m.relinked {
		m.path.BreakLink(m.oldHead)
		m.path.MakeLink(m.swap, m.nextSwap)
		m.relinked = false
	}
	for i, b := range m.interior {
		m.path.SetPos(b, m.originalPos[i])
	}
	m.path.Worm.Head = m.oldHead
	m.dirty = false
}

// ----------------------------------------------------------------------
// SwapTail
// ----------------------------------------------------------------------

// SwapTailMove is the mirror image of SwapHeadMove on the tail side:
// the pivot sits swapLength slices earlier in imaginary time, the cut
// worldline donates its upstream segment to the tail, and the bead
// left dangling becomes the new tail.
type SwapTailMove struct {
	swapMoveBase
	sigmaTail float64
	prevSwap  BeadLocator
	interior  []BeadLocator
	oldTail   BeadLocator
	relinked  bool
	dirty     bool
}

// NewSwapTailMove constructs the move against shared collaborators.
func NewSwapTailMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *SwapTailMove {
	return &SwapTailMove{
		swapMoveBase: newSwapMoveBase(p, a, rng, sc, stats, "swap tail"),
	}
}

// AttemptMove implements Move.
func (m *SwapTailMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	m.relinked = false
	if m.wrongSector() || m.swapLength >= m.consts.M {
		return false
	}
	tail := m.path.Worm.Tail
	m.oldTail = tail

	m.sigmaSwap = m.pivotNorm(tail, -1, true)
	if m.sigmaSwap <= 0 {
		return false
	}
	m.pivot = m.selectPivotBead(m.sigmaSwap)

	// The bead the pivot's worldline occupies on the tail's slice; the
	// walk fails if the segment crosses the worm head.
	m.swap = m.walk(m.pivot, m.swapLength, +1)
	if m.swap.None() || m.swap == m.path.Worm.Head {
		return false
	}

	m.sigmaTail = m.pivotNorm(m.swap, -1, false)
	if m.sigmaTail <= 0 {
		return false
	}

	m.interior = m.interior[:0]
	m.oldV = 0
	for b := m.path.Next(m.pivot); b != m.swap; b = m.path.Next(b) {
		m.interior = append(m.interior, b)
		m.oldV += m.action.PotentialActionBead(b)
	}
	m.originalPos = ensurePos(m.originalPos, len(m.interior))
	for i, b := range m.interior {
		m.originalPos[i] = m.path.Pos(b)
	}

	// Resplice: the segment's last bead now feeds the old tail.
	m.prevSwap = m.path.Prev(m.swap)
	m.path.BreakLink(m.prevSwap)
	m.path.MakeLink(m.prevSwap, tail)
	m.relinked = true
	m.dirty = true

	prev := m.pivot
	for k := 1; k < m.swapLength; k++ {
		b := m.path.Next(prev)
		r, _, _, ok := m.newStagingPositionW(prev, tail, m.swapLength, k)
		if !ok {
			m.undoMove()
			return false
		}
		m.path.SetPos(b, r)
		prev = b
	}

	m.newV = 0
	for b := m.path.Next(m.pivot); b != tail; b = m.path.Next(b) {
		m.newV += m.action.PotentialActionBead(b)
	}
	m.deltaAction = m.newV - m.oldV

	logA := math.Log(m.sigmaSwap) - math.Log(m.sigmaTail) - m.deltaAction
	if m.metropolis(logA) {
		m.path.Worm.Tail = m.swap
		m.keep()
		return true
	}
	m.undoMove()
	return false
}

func (m *SwapTailMove) undoMove() {
	if !m.dirty {
		return
	}
	if m.relinked {
		m.path.BreakLink(m.prevSwap)
		m.path.MakeLink(m.prevSwap, m.swap)
		m.relinked = false
	}
	for i, b := range m.interior {
		m.path.SetPos(b, m.originalPos[i])
	}
	m.path.Worm.Tail = m.oldTail
	m.dirty = false
}
