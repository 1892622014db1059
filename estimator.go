package pimc

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// Estimator samples an observable from the current configuration.
// Estimators are registered with the driver and measured once per
// sweep; those only defined in the diagonal sector skip off-diagonal
// configurations themselves.
type Estimator interface {
	Name() string
	Measure()
}

// Trace is an append-only scalar time series with the usual Monte Carlo
// statistics.
type Trace struct {
	data []float64
}

// Add appends one sample.
func (t *Trace) Add(x float64) { t.data = append(t.data, x) }

// Len returns the number of samples.
func (t *Trace) Len() int { return len(t.data) }

// Data exposes the raw series.
func (t *Trace) Data() []float64 { return t.data }

// Mean returns the sample mean.
func (t *Trace) Mean() float64 { return stat.Mean(t.data, nil) }

// Variance returns the unbiased sample variance.
func (t *Trace) Variance() float64 { return stat.Variance(t.data, nil) }

// StdErr returns the naive (uncorrelated) standard error of the mean.
func (t *Trace) StdErr() float64 {
	n := len(t.data)
	if n < 2 {
		return 0
	}
	return math.Sqrt(t.Variance() / float64(n))
}

// AutocorrelationTime estimates the integrated autocorrelation time of
// the series via FFT: tau_int = 1 + 2*sum(rho_k) with the sum cut at
// the first negative coefficient. Correlated series need their naive
// error bars inflated by sqrt(tau_int).
func (t *Trace) AutocorrelationTime() float64 {
	n := len(t.data)
	if n < 4 {
		return 1
	}
	mean := t.Mean()
	// Zero-pad to the next power of two at least twice the length to
	// keep the circular convolution from wrapping.
	size := 1
	for size < 2*n {
		size <<= 1
	}
	padded := make([]float64, size)
	for i, x := range t.data {
		padded[i] = x - mean
	}
	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		spectrum[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	corr := fft.IFFT(spectrum)
	c0 := real(corr[0])
	if c0 <= 0 {
		return 1
	}
	tau := 1.0
	for k := 1; k < n/2; k++ {
		rho := real(corr[k]) / c0
		if rho <= 0 {
			break
		}
		tau += 2 * rho
	}
	return tau
}

// ----------------------------------------------------------------------
// Energy
// ----------------------------------------------------------------------

// EnergyEstimator accumulates the thermodynamic energy estimator for
// the primitive action:
//
//	E = NDIM*numBeads/(2*beta) - (1/beta) * sum_links |dr|^2/(4*Lambda*tau)
//	    + (tau/beta) * sum_beads V
//
// Sampled only in the diagonal sector, where every worldline is closed.
type EnergyEstimator struct {
	path   *Path
	action Action
	consts *SimConstants
	trace  Trace
}

// NewEnergyEstimator wires the estimator to a driver's collaborators.
func NewEnergyEstimator(d *Driver) *EnergyEstimator {
	return &EnergyEstimator{path: d.Path(), action: d.Action(), consts: d.Constants()}
}

// Name implements Estimator.
func (e *EnergyEstimator) Name() string { return "energy" }

// Measure implements Estimator.
func (e *EnergyEstimator) Measure() {
	if e.path.Worm.Exists {
		return
	}
	beta := e.consts.Beta()
	kNorm := 1.0 / (4.0 * e.consts.Lambda * e.consts.Tau)

	kinetic, potential := 0.0, 0.0
	for s := 0; s < e.path.M; s++ {
		for i := 0; i < e.path.SlotsAtSlice(s); i++ {
			b := BeadLocator{s, i}
			if !e.path.BeadOn(b) {
				continue
			}
			potential += e.action.PotentialEnergy(b)
			nb := e.path.Next(b)
			kinetic += e.path.Box.MinSep(e.path.Pos(nb), e.path.Pos(b)).NormSq() * kNorm
		}
	}

	E := float64(NDIM*e.path.NumBeads())/(2.0*beta) - kinetic/beta +
		e.consts.Tau/beta*potential
	e.trace.Add(E)
}

// Trace returns the collected series.
func (e *EnergyEstimator) Trace() *Trace { return &e.trace }

// ----------------------------------------------------------------------
// Sector occupancy
// ----------------------------------------------------------------------

// SectorEstimator records 1 for diagonal configurations and 0 for
// off-diagonal ones; its mean is the diagonal fraction that the worm
// constant C is tuned against.
type SectorEstimator struct {
	path  *Path
	trace Trace
}

// NewSectorEstimator wires the estimator to a driver's path.
func NewSectorEstimator(d *Driver) *SectorEstimator {
	return &SectorEstimator{path: d.Path()}
}

// Name implements Estimator.
func (e *SectorEstimator) Name() string { return "diagonal fraction" }

// Measure implements Estimator.
func (e *SectorEstimator) Measure() {
	if e.path.Worm.Exists {
		e.trace.Add(0)
	} else {
		e.trace.Add(1)
	}
}

// Trace returns the collected series.
func (e *SectorEstimator) Trace() *Trace { return &e.trace }

// ----------------------------------------------------------------------
// Winding
// ----------------------------------------------------------------------

// WindingEstimator records the net winding number W of the full
// configuration per dimension. In the diagonal sector the net winding
// is integer-valued; SuperfluidFraction squares it for the estimator
// rho_s/rho = <W^2> L^2 / (2 Lambda beta N NDIM).
type WindingEstimator struct {
	path   *Path
	consts *SimConstants
	traces [NDIM]Trace
}

// NewWindingEstimator wires the estimator to a driver's collaborators.
func NewWindingEstimator(d *Driver) *WindingEstimator {
	return &WindingEstimator{path: d.Path(), consts: d.Constants()}
}

// Name implements Estimator.
func (e *WindingEstimator) Name() string { return "winding" }

// Measure implements Estimator.
func (e *WindingEstimator) Measure() {
	if e.path.Worm.Exists {
		return
	}
	var accum dVec
	for s := 0; s < e.path.M; s++ {
		for i := 0; i < e.path.SlotsAtSlice(s); i++ {
			b := BeadLocator{s, i}
			if !e.path.BeadOn(b) {
				continue
			}
			nb := e.path.Next(b)
			accum = accum.Add(e.path.Box.MinSep(e.path.Pos(nb), e.path.Pos(b)))
		}
	}
	for d := 0; d < NDIM; d++ {
		w := math.Round(accum[d] / e.path.Box.Side[d])
		e.traces[d].Add(w)
	}
}

// Trace returns the winding series for one dimension.
func (e *WindingEstimator) Trace(dim int) *Trace { return &e.traces[dim] }

// SuperfluidFraction returns the winding-number estimate of rho_s/rho.
func (e *WindingEstimator) SuperfluidFraction() float64 {
	if e.traces[0].Len() == 0 {
		return 0
	}
	wsq := 0.0
	for d := 0; d < NDIM; d++ {
		for _, w := range e.traces[d].Data() {
			wsq += w * w
		}
	}
	wsq /= float64(e.traces[0].Len())
	n := e.path.TrueParticles()
	L2 := e.path.Box.Side[0] * e.path.Box.Side[0]
	return wsq * L2 / (2.0 * e.consts.Lambda * e.consts.Beta() * n * float64(NDIM))
}

// ----------------------------------------------------------------------
// Position moments
// ----------------------------------------------------------------------

// XSquaredEstimator samples the mean squared displacement per bead,
// the natural observable for trapped systems.
type XSquaredEstimator struct {
	path  *Path
	trace Trace
}

// NewXSquaredEstimator wires the estimator to a driver's path.
func NewXSquaredEstimator(d *Driver) *XSquaredEstimator {
	return &XSquaredEstimator{path: d.Path()}
}

// Name implements Estimator.
func (e *XSquaredEstimator) Name() string { return "<r^2>" }

// Measure implements Estimator.
func (e *XSquaredEstimator) Measure() {
	if e.path.Worm.Exists {
		return
	}
	sum, n := 0.0, 0
	for s := 0; s < e.path.M; s++ {
		for i := 0; i < e.path.SlotsAtSlice(s); i++ {
			b := BeadLocator{s, i}
			if !e.path.BeadOn(b) {
				continue
			}
			sum += e.path.Pos(b).NormSq()
			n++
		}
	}
	if n > 0 {
		e.trace.Add(sum / float64(n))
	}
}

// Trace returns the collected series.
func (e *XSquaredEstimator) Trace() *Trace { return &e.trace }
