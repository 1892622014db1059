package pimc

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Ensemble gates a move by configuration sector.
type Ensemble int

const (
	// Any moves operate in both sectors.
	Any Ensemble = iota
	// Diagonal moves require a worm-free configuration.
	Diagonal
	// OffDiagonal moves require the worm to be present.
	OffDiagonal
)

// String names the sector for diagnostics.
func (e Ensemble) String() string {
	switch e {
	case Diagonal:
		return "diagonal"
	case OffDiagonal:
		return "off-diagonal"
	default:
		return "any"
	}
}

// debugChecks enables the expensive from-scratch action re-evaluation
// in checkMove. Meant for debug builds only.
const debugChecks = false

// MoveStatistics aggregates attempt counts across every move of one
// simulation. It replaces the process-wide counters of older codes; the
// driver owns it and moves update it under the single-writer discipline
// of the serialized move loop.
type MoveStatistics struct {
	TotAttempted uint64
	TotAccepted  uint64
}

// TotAcceptanceRatio returns the accepted fraction over all moves.
func (s *MoveStatistics) TotAcceptanceRatio() float64 {
	if s.TotAttempted == 0 {
		return 0
	}
	return float64(s.TotAccepted) / float64(s.TotAttempted)
}

// Move is a single Metropolis update. AttemptMove either commits a new
// configuration (true) or leaves the Path bit-identical to entry
// (false). Implementations are re-entered across calls and keep their
// scratch buffers.
type Move interface {
	AttemptMove() bool
	Name() string
	OperateOnConfig() Ensemble
	VariableLength() bool
	AcceptanceRatio() float64
	NumAttempted() uint64
	NumAccepted() uint64
}

// moveBase carries everything the concrete moves share: borrowed
// references, counters, scratch buffers, and the free-particle bridge
// samplers. Concrete moves embed it by value.
type moveBase struct {
	path   *Path
	action Action
	rng    *rand.Rand
	consts *SimConstants
	stats  *MoveStatistics

	name            string
	operateOnConfig Ensemble
	variableLength  bool

	numAttempted uint64
	numAccepted  uint64

	numLevels         int
	numAttemptedLevel []uint64
	numAcceptedLevel  []uint64

	// Scratch, resized on first use and reused across calls.
	originalPos []dVec
	cumrho0     []float64
	windings    []iVec

	oldAction, newAction, deltaAction float64
	oldK, newK, oldV, newV            float64
}

func newMoveBase(p *Path, a Action, rng *rand.Rand, sc *SimConstants, stats *MoveStatistics,
	name string, config Ensemble, varLength bool) moveBase {
	return moveBase{
		path:              p,
		action:            a,
		rng:               rng,
		consts:            sc,
		stats:             stats,
		name:              name,
		operateOnConfig:   config,
		variableLength:    varLength,
		numLevels:         sc.NumLevels,
		numAttemptedLevel: make([]uint64, sc.NumLevels+1),
		numAcceptedLevel:  make([]uint64, sc.NumLevels+1),
		cumrho0:           make([]float64, sc.NumWind),
		windings:          windingVectors(sc.MaxWind),
	}
}

// Name returns the registry name of the move.
func (m *moveBase) Name() string { return m.name }

// OperateOnConfig returns the sector the move requires.
func (m *moveBase) OperateOnConfig() Ensemble { return m.operateOnConfig }

// VariableLength reports whether the move updates a variable number of
// slices.
func (m *moveBase) VariableLength() bool { return m.variableLength }

// NumAttempted returns the per-move attempt count.
func (m *moveBase) NumAttempted() uint64 { return m.numAttempted }

// NumAccepted returns the per-move accept count.
func (m *moveBase) NumAccepted() uint64 { return m.numAccepted }

// AcceptanceRatio returns accepted/attempted for this move.
func (m *moveBase) AcceptanceRatio() float64 {
	if m.numAttempted == 0 {
		return 0
	}
	return float64(m.numAccepted) / float64(m.numAttempted)
}

// AcceptanceRatioLevel returns the ratio for one bisection level.
func (m *moveBase) AcceptanceRatioLevel(n int) float64 {
	if m.numAttemptedLevel[n] == 0 {
		return 0
	}
	return float64(m.numAcceptedLevel[n]) / float64(m.numAttemptedLevel[n])
}

// attempt records one entry into AttemptMove.
func (m *moveBase) attempt() {
	m.numAttempted++
	m.stats.TotAttempted++
}

// keep records an accepted move.
func (m *moveBase) keep() {
	m.numAccepted++
	m.stats.TotAccepted++
}

func (m *moveBase) attemptLevel(n int) { m.numAttemptedLevel[n]++ }
func (m *moveBase) acceptLevel(n int)  { m.numAcceptedLevel[n]++ }

// wrongSector reports whether the current configuration disagrees with
// operateOnConfig.
func (m *moveBase) wrongSector() bool {
	switch m.operateOnConfig {
	case Diagonal:
		return m.path.Worm.Exists
	case OffDiagonal:
		return !m.path.Worm.Exists
	default:
		return false
	}
}

// metropolis accepts with probability min(1, exp(logA)). NaN in the
// exponent means the configuration or the action is corrupt.
func (m *moveBase) metropolis(logA float64) bool {
	if math.IsNaN(logA) {
		panic("pimc: NaN in log acceptance ratio")
	}
	if logA >= 0 {
		return true
	}
	return math.Log(m.rng.Float64()) < logA
}

// walk advances n links from b, forward for dir > 0 and backward
// otherwise. Returns NoBead if a link is missing along the way.
func (m *moveBase) walk(b BeadLocator, n, dir int) BeadLocator {
	for i := 0; i < n; i++ {
		if b.None() {
			return NoBead
		}
		if dir > 0 {
			b = m.path.Next(b)
		} else {
			b = m.path.Prev(b)
		}
	}
	return b
}

// sampleWindingSector tower-samples a winding image for the segment
// b0 -> b1 spanning L slices. It fills cumrho0 with the normalized
// prefix sums of the image weights and returns the chosen image, the
// total (unnormalized) weight, and false if every weight underflowed.
func (m *moveBase) sampleWindingSector(b0, b1 BeadLocator, L int) (iVec, float64, bool) {
	sep := m.path.Box.MinSep(m.path.Pos(b1), m.path.Pos(b0))
	norm := 1.0 / (4.0 * m.consts.Lambda * m.consts.Tau * float64(L))
	for i, w := range m.windings {
		d := m.path.Box.Shift(sep, w)
		m.cumrho0[i] = math.Exp(-d.NormSq() * norm)
	}
	total := floats.Sum(m.cumrho0)
	if total <= 0 {
		return iVec{}, 0, false
	}
	floats.CumSum(m.cumrho0, m.cumrho0)
	floats.Scale(1.0/total, m.cumrho0)
	// Guard the invariant cumrho0[last] == 1 against rounding.
	m.cumrho0[len(m.cumrho0)-1] = 1.0
	idx := sort.SearchFloat64s(m.cumrho0, m.rng.Float64())
	if idx >= len(m.windings) {
		idx = len(m.windings) - 1
	}
	return m.windings[idx], total, true
}

// getWindingNumber reconstructs the net winding of the existing segment
// b0 -> b1 by accumulating image-reduced link displacements and rounding
// the difference against the direct endpoint displacement.
func (m *moveBase) getWindingNumber(b0, b1 BeadLocator) iVec {
	var accum dVec
	for b := b0; b != b1; {
		nb := m.path.Next(b)
		if nb.None() {
			panic(fmt.Sprintf("pimc: getWindingNumber walk fell off the path between %v and %v", b0, b1))
		}
		accum = accum.Add(m.path.Box.MinSep(m.path.Pos(nb), m.path.Pos(b)))
		b = nb
	}
	direct := m.path.Pos(b1).Sub(m.path.Pos(b0))
	var w iVec
	for d := 0; d < NDIM; d++ {
		w[d] = int(math.Round((accum[d] - direct[d]) / m.path.Box.Side[d]))
	}
	return w
}

// newStagingPosition samples the next bead of a Brownian bridge toward
// endBead. prevSampled is the most recently placed bead, L the total
// stage length in slices, and k the index of the bead being placed
// (1 <= k <= L-1).
func (m *moveBase) newStagingPosition(prevSampled, endBead BeadLocator, L, k int) dVec {
	r0 := m.path.Pos(prevSampled)
	delta := m.path.Box.MinSep(m.path.Pos(endBead), r0)
	return m.stagingStep(r0, delta, L, k)
}

// newStagingPositionW is the winding-aware variant: it first samples an
// image for endBead, bridges toward the shifted endpoint, and reports
// the chosen image and the sampler normalization so the caller can fold
// both into its acceptance ratio. ok is false when every image weight
// underflowed; the caller must reject.
func (m *moveBase) newStagingPositionW(prevSampled, endBead BeadLocator, L, k int) (dVec, iVec, float64, bool) {
	remaining := L - k + 1
	wind, norm, ok := m.sampleWindingSector(prevSampled, endBead, remaining)
	if !ok {
		return dVec{}, iVec{}, 0, false
	}
	r0 := m.path.Pos(prevSampled)
	sep := m.path.Box.MinSep(m.path.Pos(endBead), r0)
	delta := m.path.Box.Shift(sep, wind)
	return m.stagingStep(r0, delta, L, k), wind, norm, true
}

func (m *moveBase) stagingStep(r0, delta dVec, L, k int) dVec {
	frac := 1.0 / float64(L-k+1)
	sigma := m.consts.Sqrt2LambdaTau * math.Sqrt(float64(L-k)*frac)
	r := r0.Add(delta.Scale(frac))
	for d := 0; d < NDIM; d++ {
		r[d] += sigma * m.rng.NormFloat64()
	}
	return m.path.Box.Put(r)
}

// newFreeParticlePosition draws an unbridged Gaussian step of width
// sqrt(2*Lambda*tau) away from prev.
func (m *moveBase) newFreeParticlePosition(prev BeadLocator) dVec {
	r := m.path.Pos(prev)
	for d := 0; d < NDIM; d++ {
		r[d] += m.consts.Sqrt2LambdaTau * m.rng.NormFloat64()
	}
	return m.path.Box.Put(r)
}

// newBisectionPosition draws the midpoint of the already-placed beads
// shift links before and after b. The level-l variance Lambda*tau*shift
// halves at each refinement.
func (m *moveBase) newBisectionPosition(b BeadLocator, shift int) dVec {
	pb := m.walk(b, shift, -1)
	nb := m.walk(b, shift, +1)
	if pb.None() || nb.None() {
		panic(fmt.Sprintf("pimc: bisection anchor missing around %v at shift %d", b, shift))
	}
	rp := m.path.Pos(pb)
	delta := m.path.Box.MinSep(m.path.Pos(nb), rp)
	r := rp.Add(delta.Scale(0.5))
	sigma := m.consts.SqrtLambdaTau * math.Sqrt(float64(shift))
	for d := 0; d < NDIM; d++ {
		r[d] += sigma * m.rng.NormFloat64()
	}
	return m.path.Box.Put(r)
}

// checkMove re-evaluates the potential action of the beads strictly
// between b1 and b2 from scratch and asserts agreement with the
// incrementally tracked value. Active only under debugChecks.
func (m *moveBase) checkMove(b1, b2 BeadLocator, tracked float64) {
	if !debugChecks {
		return
	}
	fresh := 0.0
	for b := m.path.Next(b1); b != b2; b = m.path.Next(b) {
		fresh += m.action.PotentialActionBead(b)
	}
	if math.Abs(fresh-tracked) > 1e-10 {
		panic(fmt.Sprintf("pimc: %s action drift: tracked %.12g, fresh %.12g", m.name, tracked, fresh))
	}
	if err := m.path.CheckLinks(); err != nil {
		panic(fmt.Sprintf("pimc: %s corrupted the link graph: %v", m.name, err))
	}
}

// ensurePos grows a scratch position buffer to at least n entries.
func ensurePos(buf []dVec, n int) []dVec {
	if cap(buf) < n {
		return make([]dVec, n, n+n/2+1)
	}
	return buf[:n]
}

func ensureBool(buf []bool, n int) []bool {
	if cap(buf) < n {
		return make([]bool, n, n+n/2+1)
	}
	return buf[:n]
}
