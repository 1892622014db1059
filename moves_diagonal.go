package pimc

import (
	"math/rand"
)

// ----------------------------------------------------------------------
// CenterOfMass
// ----------------------------------------------------------------------

// CenterOfMassMove translates an entire worldline (a closed loop, or the
// worm) by a uniform random displacement. The kinetic action is
// invariant, so acceptance depends on the potential difference alone.
type CenterOfMassMove struct {
	moveBase
	beads []BeadLocator
	dirty bool
}

// NewCenterOfMassMove constructs the move against shared collaborators.
func NewCenterOfMassMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *CenterOfMassMove {
	return &CenterOfMassMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "center of mass", Any, false),
	}
}

// collectWorldline gathers every bead reachable from start: forward
// until the loop closes or the head dangles, then backward from start
// for the worm case.
func (m *CenterOfMassMove) collectWorldline(start BeadLocator) {
	m.beads = m.beads[:0]
	b := start
	closed := false
	for {
		m.beads = append(m.beads, b)
		nb := m.path.Next(b)
		if nb.None() {
			break
		}
		if nb == start {
			closed = true
			break
		}
		b = nb
	}
	if !closed {
		for pb := m.path.Prev(start); !pb.None(); pb = m.path.Prev(pb) {
			m.beads = append(m.beads, pb)
		}
	}
}

// AttemptMove implements Move.
func (m *CenterOfMassMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false

	start := m.path.RandomBead(m.rng)
	if start.None() {
		return false
	}
	m.collectWorldline(start)

	var shift dVec
	for d := 0; d < NDIM; d++ {
		shift[d] = m.consts.ComDelta * (2.0*m.rng.Float64() - 1.0)
	}

	m.oldV = 0
	m.originalPos = ensurePos(m.originalPos, len(m.beads))
	for i, b := range m.beads {
		m.oldV += m.action.PotentialActionBead(b)
		m.originalPos[i] = m.path.Pos(b)
	}
	for i, b := range m.beads {
		m.path.SetPos(b, m.path.Box.Put(m.originalPos[i].Add(shift)))
	}
	m.dirty = true

	m.newV = 0
	for _, b := range m.beads {
		m.newV += m.action.PotentialActionBead(b)
	}
	m.deltaAction = m.newV - m.oldV

	if m.metropolis(-m.deltaAction) {
		m.keep()
		return true
	}
	m.undoMove()
	return false
}

func (m *CenterOfMassMove) undoMove() {
	if !m.dirty {
		return
	}
	for i, b := range m.beads {
		m.path.SetPos(b, m.originalPos[i])
	}
	m.dirty = false
}

// ----------------------------------------------------------------------
// Displace
// ----------------------------------------------------------------------

// DisplaceMove kicks a single bead by a Gaussian of width
// sqrt(2*Lambda*tau) and accepts against the full action difference.
// Useful mostly in the classical, high-temperature regime.
type DisplaceMove struct {
	moveBase
	beadIndex BeadLocator
	origPos   dVec
	dirty     bool
}

// NewDisplaceMove constructs the move against shared collaborators.
func NewDisplaceMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *DisplaceMove {
	return &DisplaceMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "displace", Any, false),
	}
}

// localAction is the potential of b plus the kinetic action of any link
// touching it.
func (m *DisplaceMove) localAction(b BeadLocator) float64 {
	s := m.action.PotentialActionBead(b)
	if pb := m.path.Prev(b); !pb.None() {
		s += m.action.KineticAction(pb, b)
	}
	if nb := m.path.Next(b); !nb.None() {
		s += m.action.KineticAction(b, nb)
	}
	return s
}

// AttemptMove implements Move.
func (m *DisplaceMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false

	b := m.path.RandomBead(m.rng)
	if b.None() {
		return false
	}
	m.beadIndex = b
	m.origPos = m.path.Pos(b)

	m.oldAction = m.localAction(b)

	r := m.origPos
	for d := 0; d < NDIM; d++ {
		r[d] += m.consts.DisplaceDelta * m.rng.NormFloat64()
	}
	m.path.SetPos(b, m.path.Box.Put(r))
	m.dirty = true

	m.newAction = m.localAction(b)
	m.deltaAction = m.newAction - m.oldAction

	if m.metropolis(-m.deltaAction) {
		m.keep()
		return true
	}
	m.undoMove()
	return false
}

func (m *DisplaceMove) undoMove() {
	if !m.dirty {
		return
	}
	m.path.SetPos(m.beadIndex, m.origPos)
	m.dirty = false
}

// ----------------------------------------------------------------------
// Staging
// ----------------------------------------------------------------------

// StagingMove redraws the interior of a fixed-length segment by exact
// Brownian-bridge sampling. The kinetic action cancels against the
// proposal, leaving exp(-deltaV).
type StagingMove struct {
	moveBase
	startBead, endBead BeadLocator
	stageLength        int
	segment            []BeadLocator
	dirty              bool
}

// NewStagingMove constructs the move against shared collaborators.
func NewStagingMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *StagingMove {
	return &StagingMove{
		moveBase:    newMoveBase(p, a, rng, sc, stats, "staging", Any, false),
		stageLength: 1 << sc.NumLevels,
	}
}

// AttemptMove implements Move.
func (m *StagingMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false

	m.startBead = m.path.RandomBead(m.rng)
	if m.startBead.None() {
		return false
	}
	// The whole segment must be unbroken; a worm end inside it aborts.
	m.segment = m.segment[:0]
	b := m.startBead
	for i := 0; i < m.stageLength; i++ {
		b = m.path.Next(b)
		if b.None() {
			return false
		}
		m.segment = append(m.segment, b)
	}
	m.endBead = b

	L := m.stageLength
	m.oldV = 0
	m.originalPos = ensurePos(m.originalPos, L-1)
	for i := 0; i < L-1; i++ {
		m.oldV += m.action.PotentialActionBead(m.segment[i])
		m.originalPos[i] = m.path.Pos(m.segment[i])
	}

	prev := m.startBead
	for k := 1; k < L; k++ {
		cur := m.segment[k-1]
		m.path.SetPos(cur, m.newStagingPosition(prev, m.endBead, L, k))
		prev = cur
	}
	m.dirty = true

	m.newV = 0
	for i := 0; i < L-1; i++ {
		m.newV += m.action.PotentialActionBead(m.segment[i])
	}
	m.deltaAction = m.newV - m.oldV

	if m.metropolis(-m.deltaAction) {
		m.keep()
		m.checkMove(m.startBead, m.endBead, m.newV)
		return true
	}
	m.undoMove()
	m.checkMove(m.startBead, m.endBead, m.oldV)
	return false
}

func (m *StagingMove) undoMove() {
	if !m.dirty {
		return
	}
	for i := 0; i < m.stageLength-1; i++ {
		m.path.SetPos(m.segment[i], m.originalPos[i])
	}
	m.dirty = false
}

// ----------------------------------------------------------------------
// Bisection
// ----------------------------------------------------------------------

// BisectionMove refines a segment of 2^numLevels slices level by level,
// rejecting early at coarse levels. At level l the beads at spacing
// 2^(l-1) are drawn by newBisectionPosition and the level is accepted
// against the change in the level action relative to the previous level.
type BisectionMove struct {
	moveBase
	startBead, endBead BeadLocator
	shift              int
	segment            []BeadLocator
	include            []bool
	oldDeltaAction     float64
	dirty              bool
}

// NewBisectionMove constructs the move against shared collaborators.
func NewBisectionMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *BisectionMove {
	return &BisectionMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "bisection", Any, false),
		shift:    1 << sc.NumLevels,
	}
}

// AttemptMove implements Move.
func (m *BisectionMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false

	m.startBead = m.path.RandomBead(m.rng)
	if m.startBead.None() {
		return false
	}
	m.segment = m.segment[:0]
	m.segment = append(m.segment, m.startBead)
	b := m.startBead
	for i := 0; i < m.shift; i++ {
		b = m.path.Next(b)
		if b.None() {
			return false
		}
		m.segment = append(m.segment, b)
	}
	m.endBead = b

	m.originalPos = ensurePos(m.originalPos, m.shift+1)
	for i, sb := range m.segment {
		m.originalPos[i] = m.path.Pos(sb)
	}
	m.include = ensureBool(m.include, m.shift+1)
	for i := range m.include {
		m.include[i] = false
	}

	m.oldDeltaAction = 0
	for level := m.numLevels; level >= 1; level-- {
		m.attemptLevel(level)
		spacing := 1 << (level - 1)

		// The beads joining at this level still sit at their original
		// positions, so their old action reads off directly.
		oldLevel := 0.0
		for i := spacing; i < m.shift; i += 2 * spacing {
			if !m.include[i] {
				oldLevel += float64(spacing) * m.action.PotentialActionBead(m.segment[i])
			}
		}

		newLevel := 0.0
		for i := spacing; i < m.shift; i += 2 * spacing {
			if !m.include[i] {
				m.path.SetPos(m.segment[i], m.newBisectionPosition(m.segment[i], spacing))
				m.include[i] = true
				m.dirty = true
				newLevel += float64(spacing) * m.action.PotentialActionBead(m.segment[i])
			}
		}
		m.deltaAction = newLevel - oldLevel

		if !m.metropolis(-(m.deltaAction - m.oldDeltaAction)) {
			m.undoMove()
			return false
		}
		m.acceptLevel(level)
		m.oldDeltaAction = m.deltaAction
	}

	// Fully refined: level-0 bookkeeping records complete bisections.
	m.attemptLevel(0)
	m.acceptLevel(0)
	m.keep()
	return true
}

func (m *BisectionMove) undoMove() {
	if !m.dirty {
		return
	}
	for i := 1; i < m.shift; i++ {
		m.path.SetPos(m.segment[i], m.originalPos[i])
	}
	m.dirty = false
}

// ----------------------------------------------------------------------
// EndStaging
// ----------------------------------------------------------------------

// EndStagingMove redraws the final stretch of the worm at the head or
// tail by free-particle sampling anchored on a single interior bead.
// leftMoving selects the tail side, where sampling runs backward in
// imaginary time.
type EndStagingMove struct {
	moveBase
	leftMoving          bool
	leftBead, rightBead BeadLocator
	beads               []BeadLocator
	dirty               bool
}

// NewEndStagingMove constructs the move against shared collaborators.
func NewEndStagingMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *EndStagingMove {
	return &EndStagingMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "end staging", OffDiagonal, false),
	}
}

// AttemptMove implements Move.
func (m *EndStagingMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	if m.wrongSector() {
		return false
	}

	L := 1 << m.numLevels
	if wl := m.path.WormLength(); L > wl {
		L = wl
	}
	if L < 1 {
		return false
	}

	m.leftMoving = m.rng.Float64() < 0.5
	m.beads = m.beads[:0]

	if m.leftMoving {
		// Tail side: anchor L links up the worm, then sample backward.
		anchor := m.walk(m.path.Worm.Tail, L, +1)
		if anchor.None() {
			return false
		}
		m.rightBead = anchor
		b := anchor
		for i := 0; i < L; i++ {
			b = m.path.Prev(b)
			m.beads = append(m.beads, b)
		}
		m.leftBead = b
	} else {
		// Head side: anchor L links down the worm, then sample forward.
		anchor := m.walk(m.path.Worm.Head, L, -1)
		if anchor.None() {
			return false
		}
		m.leftBead = anchor
		b := anchor
		for i := 0; i < L; i++ {
			b = m.path.Next(b)
			m.beads = append(m.beads, b)
		}
		m.rightBead = b
	}

	m.oldV = 0
	m.originalPos = ensurePos(m.originalPos, len(m.beads))
	for i, b := range m.beads {
		m.oldV += m.action.PotentialActionBead(b)
		m.originalPos[i] = m.path.Pos(b)
	}

	prev := m.rightBead
	if !m.leftMoving {
		prev = m.leftBead
	}
	for _, b := range m.beads {
		m.path.SetPos(b, m.newFreeParticlePosition(prev))
		prev = b
	}
	m.dirty = true

	m.newV = 0
	for _, b := range m.beads {
		m.newV += m.action.PotentialActionBead(b)
	}
	m.deltaAction = m.newV - m.oldV

	if m.metropolis(-m.deltaAction) {
		m.keep()
		return true
	}
	m.undoMove()
	return false
}

func (m *EndStagingMove) undoMove() {
	if !m.dirty {
		return
	}
	for i, b := range m.beads {
		m.path.SetPos(b, m.originalPos[i])
	}
	m.dirty = false
}

// ----------------------------------------------------------------------
// MidStaging
// ----------------------------------------------------------------------

// MidStagingMove bridges across the worm break: it restages a segment
// running from L1 slices before the head, through the head-tail hop,
// to L2 slices past the tail. The hop is treated as a single
// imaginary-time step, so the move applies only when the gap is one
// slice; the acceptance carries the ratio of the hop's free propagators
// since that virtual link has no kinetic action in the path weight.
type MidStagingMove struct {
	moveBase
	leftBead, rightBead BeadLocator
	midBeadL, midBeadR  BeadLocator
	chain               []BeadLocator
	dirty               bool
}

// NewMidStagingMove constructs the move against shared collaborators.
func NewMidStagingMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *MidStagingMove {
	return &MidStagingMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "mid staging", OffDiagonal, false),
	}
}

// hopAction is the kinetic weight the proposal assigns to the virtual
// head-tail link.
func (m *MidStagingMove) hopAction() float64 {
	sep := m.path.Box.MinSep(m.path.Pos(m.midBeadR), m.path.Pos(m.midBeadL))
	return sep.NormSq() / (4.0 * m.consts.Lambda * m.consts.Tau)
}

// AttemptMove implements Move.
func (m *MidStagingMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	if m.wrongSector() {
		return false
	}
	if m.path.WormGap() != 1 {
		return false
	}

	L := 1 << m.numLevels
	wl := m.path.WormLength()
	if L < 2 || L-1 > wl {
		return false
	}
	L1 := m.rng.Intn(L-1) + 1 // slices left of the break
	L2 := L - 1 - L1          // slices right of the break

	m.midBeadL = m.path.Worm.Head
	m.midBeadR = m.path.Worm.Tail
	m.leftBead = m.walk(m.midBeadL, L1, -1)
	m.rightBead = m.walk(m.midBeadR, L2, +1)
	if m.leftBead.None() || m.rightBead.None() || L1+L2 >= wl {
		return false
	}

	// Bead chain along the virtual path, endpoints included.
	m.chain = m.chain[:0]
	b := m.leftBead
	m.chain = append(m.chain, b)
	for i := 0; i < L1; i++ {
		b = m.path.Next(b)
		m.chain = append(m.chain, b)
	}
	b = m.midBeadR
	m.chain = append(m.chain, b)
	for i := 0; i < L2; i++ {
		b = m.path.Next(b)
		m.chain = append(m.chain, b)
	}

	oldHop := m.hopAction()
	m.oldV = 0
	m.originalPos = ensurePos(m.originalPos, len(m.chain))
	for i := 1; i < len(m.chain)-1; i++ {
		m.oldV += m.action.PotentialActionBead(m.chain[i])
	}
	for i, cb := range m.chain {
		m.originalPos[i] = m.path.Pos(cb)
	}

	for k := 1; k < L; k++ {
		r, _, _, ok := m.newStagingPositionW(m.chain[k-1], m.rightBead, L, k)
		if !ok {
			m.undoMove()
			return false
		}
		m.path.SetPos(m.chain[k], r)
		m.dirty = true
	}

	newHop := m.hopAction()
	m.newV = 0
	for i := 1; i < len(m.chain)-1; i++ {
		m.newV += m.action.PotentialActionBead(m.chain[i])
	}
	m.deltaAction = m.newV - m.oldV

	// The hop weight belongs to the proposal, not the target.
	if m.metropolis(-m.deltaAction + newHop - oldHop) {
		m.keep()
		return true
	}
	m.undoMove()
	return false
}

func (m *MidStagingMove) undoMove() {
	if !m.dirty {
		return
	}
	for i, b := range m.chain {
		m.path.SetPos(b, m.originalPos[i])
	}
	m.dirty = false
}

// ----------------------------------------------------------------------
// SwapBreak
// ----------------------------------------------------------------------

// SwapBreakMove hands the dangling head to a closed worldline crossing
// the same slice boundary: the chosen worldline is cut and the old head
// splices into it, so its upstream bead becomes the new head. Only one
// kinetic link changes and no positions move; rejection paths never
// mutate, and undoMove only reverts an accepted relink.
type SwapBreakMove struct {
	moveBase
	candidates []BeadLocator
	// Saved relink info for a forced rollback of an accepted move.
	oldHead, swapped, swappedNext BeadLocator
	dirty                         bool
}

// NewSwapBreakMove constructs the move against shared collaborators.
func NewSwapBreakMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *SwapBreakMove {
	return &SwapBreakMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "swap break", OffDiagonal, false),
	}
}

// AttemptMove implements Move.
func (m *SwapBreakMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	if m.wrongSector() {
		return false
	}

	head := m.path.Worm.Head
	s := head.Slice
	m.candidates = m.candidates[:0]
	for i := 0; i < m.path.SlotsAtSlice(s); i++ {
		b := BeadLocator{s, i}
		if b == head || b == m.path.Worm.Tail || !m.path.BeadOn(b) {
			continue
		}
		if !m.path.Next(b).None() {
			m.candidates = append(m.candidates, b)
		}
	}
	if len(m.candidates) == 0 {
		return false
	}
	k := m.candidates[m.rng.Intn(len(m.candidates))]
	kNext := m.path.Next(k)

	norm := 1.0 / (4.0 * m.consts.Lambda * m.consts.Tau)
	m.oldK = m.path.Box.MinSep(m.path.Pos(kNext), m.path.Pos(k)).NormSq() * norm
	m.newK = m.path.Box.MinSep(m.path.Pos(kNext), m.path.Pos(head)).NormSq() * norm

	if !m.metropolis(-(m.newK - m.oldK)) {
		return false
	}

	m.oldHead, m.swapped, m.swappedNext = head, k, kNext
	m.path.BreakLink(k)
	m.path.MakeLink(head, kNext)
	m.path.Worm.Head = k
	m.dirty = true
	m.keep()
	return true
}

func (m *SwapBreakMove) undoMove() {
	if !m.dirty {
		return
	}
	m.path.BreakLink(m.oldHead)
	m.path.MakeLink(m.swapped, m.swappedNext)
	m.path.Worm.Head = m.oldHead
	m.dirty = false
}
