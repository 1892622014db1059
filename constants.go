package pimc

import (
	"errors"
	"math"
)

// SimConstants collects the read-only quantities every move needs.
// They are computed once during setup and shared by reference.
type SimConstants struct {
	Tau    float64 // imaginary-time step
	Lambda float64 // hbar^2 / 2m
	M      int     // number of time slices
	Mbar   int     // mean worm update length in slices
	Mu     float64 // chemical potential
	C      float64 // worm constant
	Box    Box     // periodic simulation cell

	MaxWind int // largest winding image per dimension
	NumWind int // (2*MaxWind+1)^NDIM

	NumLevels int // bisection / swap levels: 2^NumLevels slices

	// Derived widths, cached to keep them off the hot path.
	Sqrt2LambdaTau float64
	SqrtLambdaTau  float64

	// Step sizes for the classical-style moves.
	ComDelta      float64 // center-of-mass displacement half-width
	DisplaceDelta float64 // single-bead Gaussian kick width
}

// NewSimConstants validates the physical inputs and fills in every
// derived quantity.
func NewSimConstants(tau, lambda float64, m, mbar int, mu, c float64, box Box) (*SimConstants, error) {
	if tau <= 0 {
		return nil, errors.New("imaginary-time step tau must be positive")
	}
	if lambda <= 0 {
		return nil, errors.New("lambda = hbar^2/2m must be positive")
	}
	if m < 2 {
		return nil, errors.New("need at least two time slices")
	}
	if mbar < 1 || mbar > m {
		return nil, errors.New("worm length scale Mbar must lie in [1, M]")
	}
	for d := 0; d < NDIM; d++ {
		if box.Side[d] <= 0 {
			return nil, errors.New("box side lengths must be positive")
		}
	}

	sc := &SimConstants{
		Tau:    tau,
		Lambda: lambda,
		M:      m,
		Mbar:   mbar,
		Mu:     mu,
		C:      c,
		Box:    box,

		MaxWind: 1,

		Sqrt2LambdaTau: math.Sqrt(2.0 * lambda * tau),
		SqrtLambdaTau:  math.Sqrt(lambda * tau),
	}
	sc.NumWind = numWindings(sc.MaxWind)

	// 2^NumLevels slices per bisection; under half the path, except that
	// at least one level (two slices) is always used.
	sc.NumLevels = 1
	for (1 << (sc.NumLevels + 1)) < m/2 {
		sc.NumLevels++
	}

	// Tuned for roughly 50% acceptance at moderate densities; the
	// driver may override both.
	sc.ComDelta = 0.5 * math.Min(math.Min(box.Side[0], box.Side[1]), box.Side[2])
	if sc.ComDelta > 2.0*sc.Sqrt2LambdaTau*math.Sqrt(float64(m)) {
		sc.ComDelta = 2.0 * sc.Sqrt2LambdaTau * math.Sqrt(float64(m))
	}
	sc.DisplaceDelta = sc.Sqrt2LambdaTau

	return sc, nil
}

// Beta returns the inverse temperature M*tau.
func (sc *SimConstants) Beta() float64 { return float64(sc.M) * sc.Tau }

// SetMaxWind changes the number of winding images considered per
// dimension. Must be called before any move is constructed.
func (sc *SimConstants) SetMaxWind(maxWind int) error {
	if maxWind < 0 {
		return errors.New("maxWind must be non-negative")
	}
	sc.MaxWind = maxWind
	sc.NumWind = numWindings(maxWind)
	return nil
}

func numWindings(maxWind int) int {
	n := 1
	for d := 0; d < NDIM; d++ {
		n *= 2*maxWind + 1
	}
	return n
}

// windingVectors enumerates {-maxWind..maxWind}^NDIM in a fixed order
// so that tower sampling is reproducible across runs.
func windingVectors(maxWind int) []iVec {
	out := make([]iVec, 0, numWindings(maxWind))
	var w iVec
	var walk func(d int)
	walk = func(d int) {
		if d == NDIM {
			out = append(out, w)
			return
		}
		for i := -maxWind; i <= maxWind; i++ {
			w[d] = i
			walk(d + 1)
		}
	}
	walk(0)
	return out
}
