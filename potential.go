package pimc

// ExternalPotential evaluates the one-body potential at a position.
type ExternalPotential interface {
	V(r dVec) float64
}

// PairPotential evaluates the two-body interaction for a minimum-image
// separation vector.
type PairPotential interface {
	Vpair(sep dVec) float64
}

// FreePotential is the zero external potential.
type FreePotential struct{}

// V always returns zero.
func (FreePotential) V(dVec) float64 { return 0 }

// HarmonicPotential is the isotropic well V = (1/2) omega^2 |r|^2.
type HarmonicPotential struct {
	Omega float64
}

// V returns the harmonic well energy at r.
func (h HarmonicPotential) V(r dVec) float64 {
	return 0.5 * h.Omega * h.Omega * r.NormSq()
}

// PotentialFunc adapts a plain function to ExternalPotential.
type PotentialFunc func(r dVec) float64

// V evaluates the wrapped function.
func (f PotentialFunc) V(r dVec) float64 { return f(r) }

// PairPotentialFunc adapts a plain function to PairPotential.
type PairPotentialFunc func(sep dVec) float64

// Vpair evaluates the wrapped function.
func (f PairPotentialFunc) Vpair(sep dVec) float64 { return f(sep) }
