package pimc

import (
	"math"
	"math/rand"
)

// ----------------------------------------------------------------------
// Open
// ----------------------------------------------------------------------

// OpenMove cuts a closed worldline open: it removes the gapLength-1
// beads between a randomly chosen bead and its gapLength-th successor,
// promoting the pair to worm head and tail. The reverse-move proposal
// density is the winding-summed free propagator across the new gap.
type OpenMove struct {
	moveBase
	headBead, tailBead BeadLocator
	gapLength          int
	interior           []BeadLocator
	dirty              bool
}

// NewOpenMove constructs the move against shared collaborators.
func NewOpenMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *OpenMove {
	return &OpenMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "open", Diagonal, true),
	}
}

// AttemptMove implements Move.
func (m *OpenMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	if m.wrongSector() {
		return false
	}

	m.gapLength = m.rng.Intn(2*m.consts.Mbar-1) + 1
	if m.gapLength >= m.consts.M {
		return false
	}
	m.headBead = m.path.RandomBead(m.rng)
	if m.headBead.None() {
		return false
	}
	m.tailBead = m.walk(m.headBead, m.gapLength, +1)

	rhoFree := m.action.RhoFree(m.headBead, m.tailBead, m.gapLength)
	if rhoFree <= 0 {
		return false
	}

	m.interior = m.interior[:0]
	m.oldV = 0
	for b := m.path.Next(m.headBead); b != m.tailBead; b = m.path.Next(b) {
		m.interior = append(m.interior, b)
		m.oldV += m.action.PotentialActionBead(b)
	}
	m.originalPos = ensurePos(m.originalPos, len(m.interior))
	for i, b := range m.interior {
		m.originalPos[i] = m.path.Pos(b)
	}

	n := m.path.TrueParticles()
	logA := math.Log(m.consts.C*float64(m.consts.Mbar)*n*float64(m.consts.M)) -
		math.Log(rhoFree) + m.oldV +
		m.consts.Mu*float64(m.gapLength)*m.consts.Tau

	if !m.metropolis(logA) {
		return false
	}

	if len(m.interior) == 0 {
		m.path.BreakLink(m.headBead)
	} else {
		for _, b := range m.interior {
			m.path.DelBead(b)
		}
	}
	m.path.Worm = Worm{Head: m.headBead, Tail: m.tailBead, Exists: true}
	m.dirty = true
	m.keep()
	return true
}

func (m *OpenMove) undoMove() {
	if !m.dirty {
		return
	}
	prev := m.headBead
	for i, b := range m.interior {
		m.path.AddBeadAt(b, m.originalPos[i])
		m.path.MakeLink(prev, b)
		prev = b
	}
	m.path.MakeLink(prev, m.tailBead)
	m.path.Worm = Worm{}
	m.dirty = false
}

// ----------------------------------------------------------------------
// Close
// ----------------------------------------------------------------------

// CloseMove fills the worm gap with a winding-aware Brownian bridge from
// head to tail, returning the configuration to the diagonal sector. Its
// acceptance is the reciprocal of OpenMove's.
type CloseMove struct {
	moveBase
	headBead, tailBead BeadLocator
	created            []BeadLocator
	dirty              bool
}

// NewCloseMove constructs the move against shared collaborators.
func NewCloseMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *CloseMove {
	return &CloseMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "close", OffDiagonal, true),
	}
}

// AttemptMove implements Move.
func (m *CloseMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	if m.wrongSector() {
		return false
	}

	m.headBead = m.path.Worm.Head
	m.tailBead = m.path.Worm.Tail
	gap := m.path.WormGap()
	if gap >= 2*m.consts.Mbar || gap >= m.consts.M {
		return false
	}

	rhoFree := m.action.RhoFree(m.headBead, m.tailBead, gap)
	if rhoFree <= 0 {
		return false
	}

	m.created = m.created[:0]
	m.newV = 0
	cur := m.headBead
	for k := 1; k < gap; k++ {
		r, _, _, ok := m.newStagingPositionW(cur, m.tailBead, gap, k)
		if !ok {
			m.undoMove()
			return false
		}
		cur = m.path.AddNextBead(cur, r)
		m.created = append(m.created, cur)
		m.dirty = true
		m.newV += m.action.PotentialActionBead(cur)
	}
	m.path.MakeLink(cur, m.tailBead)
	m.dirty = true

	nAfter := float64(m.path.NumBeads()) / float64(m.consts.M)
	logA := math.Log(rhoFree) -
		math.Log(m.consts.C*float64(m.consts.Mbar)*nAfter*float64(m.consts.M)) -
		m.newV - m.consts.Mu*float64(gap)*m.consts.Tau

	if m.metropolis(logA) {
		m.path.Worm = Worm{}
		m.keep()
		return true
	}
	m.undoMove()
	return false
}

func (m *CloseMove) undoMove() {
	if !m.dirty {
		return
	}
	for _, b := range m.created {
		m.path.DelBead(b)
	}
	if len(m.created) == 0 {
		// Direct head-tail link was the only mutation.
		m.path.BreakLink(m.headBead)
	}
	m.path.Worm = Worm{Head: m.headBead, Tail: m.tailBead, Exists: true}
	m.dirty = false
}

// ----------------------------------------------------------------------
// Insert
// ----------------------------------------------------------------------

// InsertMove grows a brand new worm: a random anchor position at a
// random slice, extended forward by free-particle sampling. The
// acceptance carries the cell volume for the anchor choice.
type InsertMove struct {
	moveBase
	headBead, tailBead BeadLocator
	wormLength         int
	created            []BeadLocator
	grown              []bool // created[i] occupies a slot appended by this attempt
	dirty              bool
}

// NewInsertMove constructs the move against shared collaborators.
func NewInsertMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *InsertMove {
	return &InsertMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "insert", Diagonal, true),
	}
}

// AttemptMove implements Move.
func (m *InsertMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	if m.wrongSector() {
		return false
	}

	m.wormLength = m.rng.Intn(2*m.consts.Mbar-1) + 1
	if m.wormLength >= m.consts.M {
		return false
	}
	s0 := m.rng.Intn(m.consts.M)
	var r0 dVec
	for d := 0; d < NDIM; d++ {
		r0[d] = m.path.Box.Side[d] * (m.rng.Float64() - 0.5)
	}

	m.created = m.created[:0]
	m.grown = m.grown[:0]
	slots := m.path.SlotsAtSlice(s0)
	m.tailBead = m.path.AddBead(s0, r0)
	m.created = append(m.created, m.tailBead)
	m.grown = append(m.grown, m.tailBead.Ptcl == slots)
	m.dirty = true
	m.newV = m.action.PotentialActionBead(m.tailBead)

	cur := m.tailBead
	for i := 0; i < m.wormLength; i++ {
		slots = m.path.SlotsAtSlice((cur.Slice + 1) % m.consts.M)
		cur = m.path.AddNextBead(cur, m.newFreeParticlePosition(cur))
		m.created = append(m.created, cur)
		m.grown = append(m.grown, cur.Ptcl == slots)
		m.newV += m.action.PotentialActionBead(cur)
	}
	m.headBead = cur

	logA := math.Log(m.consts.C*float64(m.consts.Mbar)*float64(m.consts.M)*m.path.Box.Volume()) -
		m.newV + m.consts.Mu*float64(m.wormLength)*m.consts.Tau

	if m.metropolis(logA) {
		m.path.Worm = Worm{Head: m.headBead, Tail: m.tailBead, Exists: true}
		m.keep()
		return true
	}
	m.undoMove()
	return false
}

func (m *InsertMove) undoMove() {
	if !m.dirty {
		return
	}
	for i := len(m.created) - 1; i >= 0; i-- {
		b := m.created[i]
		m.path.DelBead(b)
		if m.grown[i] {
			// Drop the appended slot so the slot layout matches entry.
			s := b.Slice
			m.path.pos[s] = m.path.pos[s][:b.Ptcl]
			m.path.beadOn[s] = m.path.beadOn[s][:b.Ptcl]
			m.path.next[s] = m.path.next[s][:b.Ptcl]
			m.path.prev[s] = m.path.prev[s][:b.Ptcl]
		}
	}
	m.path.Worm = Worm{}
	m.dirty = false
}

// ----------------------------------------------------------------------
// Remove
// ----------------------------------------------------------------------

// RemoveMove deletes the entire worm, returning to the diagonal sector.
// Valid only for worms short enough that the reverse InsertMove could
// have proposed them.
type RemoveMove struct {
	moveBase
	beads []BeadLocator
	worm  Worm
	dirty bool
}

// NewRemoveMove constructs the move against shared collaborators.
func NewRemoveMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *RemoveMove {
	return &RemoveMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "remove", OffDiagonal, true),
	}
}

// AttemptMove implements Move.
func (m *RemoveMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	if m.wrongSector() {
		return false
	}

	length := m.path.WormLength()
	if length >= 2*m.consts.Mbar || length >= m.consts.M {
		return false
	}

	m.beads = m.beads[:0]
	m.oldV = 0
	for b := m.path.Worm.Tail; ; b = m.path.Next(b) {
		m.beads = append(m.beads, b)
		m.oldV += m.action.PotentialActionBead(b)
		if b == m.path.Worm.Head {
			break
		}
	}
	m.originalPos = ensurePos(m.originalPos, len(m.beads))
	for i, b := range m.beads {
		m.originalPos[i] = m.path.Pos(b)
	}

	logA := m.oldV - m.consts.Mu*float64(length)*m.consts.Tau -
		math.Log(m.consts.C*float64(m.consts.Mbar)*float64(m.consts.M)*m.path.Box.Volume())

	if !m.metropolis(logA) {
		return false
	}

	m.worm = m.path.Worm
	for _, b := range m.beads {
		m.path.DelBead(b)
	}
	m.path.Worm = Worm{}
	m.dirty = true
	m.keep()
	return true
}

func (m *RemoveMove) undoMove() {
	if !m.dirty {
		return
	}
	for i, b := range m.beads {
		m.path.AddBeadAt(b, m.originalPos[i])
		if i > 0 {
			m.path.MakeLink(m.beads[i-1], b)
		}
	}
	m.path.Worm = m.worm
	m.dirty = false
}

// ----------------------------------------------------------------------
// CanonicalOpen
// ----------------------------------------------------------------------

// CanonicalOpenMove opens a worldline with head and tail pinned to the
// same time slice by removing a full loop of M-1 beads, so closing
// again can never change the particle number. The gap length is fixed,
// so no length-choice factor or fugacity enters the acceptance.
// Worldlines forming one-particle cycles are skipped: their same-slice
// worm would be a single unlinked bead.
type CanonicalOpenMove struct {
	moveBase
	headBead, tailBead BeadLocator
	interior           []BeadLocator
	dirty              bool
}

// NewCanonicalOpenMove constructs the move against shared collaborators.
func NewCanonicalOpenMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *CanonicalOpenMove {
	return &CanonicalOpenMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "canonical open", Diagonal, true),
	}
}

// AttemptMove implements Move.
func (m *CanonicalOpenMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	if m.wrongSector() {
		return false
	}
	if 2*m.consts.Mbar <= m.consts.M {
		return false
	}

	m.headBead = m.path.RandomBead(m.rng)
	if m.headBead.None() {
		return false
	}
	m.tailBead = m.walk(m.headBead, m.consts.M, +1)
	if m.tailBead == m.headBead {
		return false
	}

	rhoFree := m.action.RhoFree(m.headBead, m.tailBead, m.consts.M)
	if rhoFree <= 0 {
		return false
	}

	m.interior = m.interior[:0]
	m.oldV = 0
	for b := m.path.Next(m.headBead); b != m.tailBead; b = m.path.Next(b) {
		m.interior = append(m.interior, b)
		m.oldV += m.action.PotentialActionBead(b)
	}
	m.originalPos = ensurePos(m.originalPos, len(m.interior))
	for i, b := range m.interior {
		m.originalPos[i] = m.path.Pos(b)
	}

	n := m.path.TrueParticles()
	logA := math.Log(m.consts.C*n*float64(m.consts.M)) - math.Log(rhoFree) + m.oldV

	if !m.metropolis(logA) {
		return false
	}

	for _, b := range m.interior {
		m.path.DelBead(b)
	}
	m.path.Worm = Worm{Head: m.headBead, Tail: m.tailBead, Exists: true}
	m.dirty = true
	m.keep()
	return true
}

func (m *CanonicalOpenMove) undoMove() {
	if !m.dirty {
		return
	}
	prev := m.headBead
	for i, b := range m.interior {
		m.path.AddBeadAt(b, m.originalPos[i])
		m.path.MakeLink(prev, b)
		prev = b
	}
	m.path.MakeLink(prev, m.tailBead)
	m.path.Worm = Worm{}
	m.dirty = false
}

// ----------------------------------------------------------------------
// CanonicalClose
// ----------------------------------------------------------------------

// CanonicalCloseMove closes a same-slice worm by bridging the full
// M-slice gap, mirroring CanonicalOpenMove.
type CanonicalCloseMove struct {
	moveBase
	headBead, tailBead BeadLocator
	created            []BeadLocator
	dirty              bool
}

// NewCanonicalCloseMove constructs the move against shared collaborators.
func NewCanonicalCloseMove(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics) *CanonicalCloseMove {
	return &CanonicalCloseMove{
		moveBase: newMoveBase(p, a, rng, sc, stats, "canonical close", OffDiagonal, true),
	}
}

// AttemptMove implements Move.
func (m *CanonicalCloseMove) AttemptMove() bool {
	m.attempt()
	m.dirty = false
	if m.wrongSector() {
		return false
	}
	if m.path.Worm.Head.Slice != m.path.Worm.Tail.Slice {
		return false
	}

	m.headBead = m.path.Worm.Head
	m.tailBead = m.path.Worm.Tail
	gap := m.consts.M

	rhoFree := m.action.RhoFree(m.headBead, m.tailBead, gap)
	if rhoFree <= 0 {
		return false
	}

	m.created = m.created[:0]
	m.newV = 0
	cur := m.headBead
	for k := 1; k < gap; k++ {
		r, _, _, ok := m.newStagingPositionW(cur, m.tailBead, gap, k)
		if !ok {
			m.undoMove()
			return false
		}
		cur = m.path.AddNextBead(cur, r)
		m.created = append(m.created, cur)
		m.dirty = true
		m.newV += m.action.PotentialActionBead(cur)
	}
	m.path.MakeLink(cur, m.tailBead)
	m.dirty = true

	nAfter := float64(m.path.NumBeads()) / float64(m.consts.M)
	logA := math.Log(rhoFree) - math.Log(m.consts.C*nAfter*float64(m.consts.M)) - m.newV

	if m.metropolis(logA) {
		m.path.Worm = Worm{}
		m.keep()
		return true
	}
	m.undoMove()
	return false
}

func (m *CanonicalCloseMove) undoMove() {
	if !m.dirty {
		return
	}
	for _, b := range m.created {
		m.path.DelBead(b)
	}
	if len(m.created) == 0 {
		m.path.BreakLink(m.headBead)
	}
	m.path.Worm = Worm{Head: m.headBead, Tail: m.tailBead, Exists: true}
	m.dirty = false
}
