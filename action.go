package pimc

import (
	"fmt"
	"math"
)

// Action evaluates the imaginary-time action of pieces of a Path. Moves
// consume it through this interface; the discretization scheme is not
// their concern.
type Action interface {
	// PotentialEnergy returns the potential energy carried by bead b:
	// the external potential plus the full pair sum against the other
	// beads on its slice.
	PotentialEnergy(b BeadLocator) float64

	// PotentialActionBead returns tau * PotentialEnergy(b).
	PotentialActionBead(b BeadLocator) float64

	// PotentialAction sums PotentialActionBead over the inclusive range
	// b1..b2 following next links.
	PotentialAction(b1, b2 BeadLocator) float64

	// KineticAction sums the link actions |dr|^2/(4*Lambda*tau) along
	// the walk from b1 to b2.
	KineticAction(b1, b2 BeadLocator) float64

	// RhoFree returns the free-particle kinetic weight between b1 and
	// b2 at a separation of L slices, summed over winding images.
	RhoFree(b1, b2 BeadLocator, L int) float64
}

// PrimitiveAction is the primitive (lowest-order) discretization: the
// potential acts at each slice with weight tau and the kinetic term is
// the exact free-particle link action.
type PrimitiveAction struct {
	path     *Path
	consts   *SimConstants
	external ExternalPotential
	pair     PairPotential // may be nil
	windings []iVec
}

// NewPrimitiveAction wires an action to a path and its potentials.
func NewPrimitiveAction(p *Path, sc *SimConstants, ext ExternalPotential, pair PairPotential) *PrimitiveAction {
	return &PrimitiveAction{
		path:     p,
		consts:   sc,
		external: ext,
		pair:     pair,
		windings: windingVectors(sc.MaxWind),
	}
}

// PotentialEnergy returns the one-body plus pair energy of bead b.
func (a *PrimitiveAction) PotentialEnergy(b BeadLocator) float64 {
	p := a.path
	r := p.Pos(b)
	e := a.external.V(r)
	if a.pair != nil {
		for i := 0; i < p.SlotsAtSlice(b.Slice); i++ {
			if i == b.Ptcl || !p.beadOn[b.Slice][i] {
				continue
			}
			e += a.pair.Vpair(p.Box.MinSep(r, p.pos[b.Slice][i]))
		}
	}
	return e
}

// PotentialActionBead returns the per-slice potential action of b.
func (a *PrimitiveAction) PotentialActionBead(b BeadLocator) float64 {
	return a.consts.Tau * a.PotentialEnergy(b)
}

// PotentialAction walks b1..b2 inclusive along next links.
func (a *PrimitiveAction) PotentialAction(b1, b2 BeadLocator) float64 {
	s := 0.0
	for b := b1; ; b = a.path.Next(b) {
		if b.None() {
			panic(fmt.Sprintf("pimc: PotentialAction walk fell off the path between %v and %v", b1, b2))
		}
		s += a.PotentialActionBead(b)
		if b == b2 {
			return s
		}
	}
}

// KineticAction sums the link terms along the walk from b1 to b2.
func (a *PrimitiveAction) KineticAction(b1, b2 BeadLocator) float64 {
	norm := 1.0 / (4.0 * a.consts.Lambda * a.consts.Tau)
	s := 0.0
	for b := b1; b != b2; {
		nb := a.path.Next(b)
		if nb.None() {
			panic(fmt.Sprintf("pimc: KineticAction walk fell off the path between %v and %v", b1, b2))
		}
		s += a.path.Box.MinSep(a.path.Pos(nb), a.path.Pos(b)).NormSq() * norm
		b = nb
	}
	return s
}

// RhoFree is the unnormalized free density matrix over L slices between
// b1 and b2, summed over the winding images allowed by the constants.
func (a *PrimitiveAction) RhoFree(b1, b2 BeadLocator, L int) float64 {
	sep := a.path.Box.MinSep(a.path.Pos(b2), a.path.Pos(b1))
	norm := 1.0 / (4.0 * a.consts.Lambda * a.consts.Tau * float64(L))
	rho := 0.0
	for _, w := range a.windings {
		d := a.path.Box.Shift(sep, w)
		rho += math.Exp(-d.NormSq() * norm)
	}
	return rho
}
