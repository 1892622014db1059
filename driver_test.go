package pimc

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harmonicDriver is a fixed-N diagonal simulation of one particle in an
// isotropic well, driven by the pure position-update moves.
func harmonicDriver(t *testing.T, seed int64) (*Driver, *SimConstants) {
	t.Helper()
	box := Box{Side: dVec{20, 20, 20}}
	sc, err := NewSimConstants(1.0/16.0, 0.5, 16, 4, 0, 1, box)
	require.NoError(t, err)
	require.NoError(t, sc.SetMaxWind(0))

	p, err := NewPath(16, box, []dVec{{0, 0, 0}})
	require.NoError(t, err)
	action := NewPrimitiveAction(p, sc, HarmonicPotential{Omega: 1}, nil)

	d := NewDriver(p, action, NewRNG(seed), sc)
	d.AddMove(NewCenterOfMassMove(p, action, d.RNG(), sc, d.Stats), 0.2)
	d.AddMove(NewStagingMove(p, action, d.RNG(), sc, d.Stats), 0.4)
	d.AddMove(NewBisectionMove(p, action, d.RNG(), sc, d.Stats), 0.4)
	return d, sc
}

// TestHarmonicMoments compares <r^2> and the thermodynamic energy of a
// single trapped boson against the exact oscillator results at beta=1,
// omega=1: <x^2> per dimension is coth(beta*omega/2)/(2*omega).
func TestHarmonicMoments(t *testing.T) {
	d, _ := harmonicDriver(t, 42)
	rsq := NewXSquaredEstimator(d)
	energy := NewEnergyEstimator(d)
	d.AddEstimator(rsq)
	d.AddEstimator(energy)

	d.Equilibrate(400)
	d.Run(4000)

	coth := 1.0 / math.Tanh(0.5)
	wantRsq := float64(NDIM) * coth / 2.0
	wantE := float64(NDIM) * coth / 2.0

	require.Greater(t, rsq.Trace().Len(), 0)
	assert.InDelta(t, wantRsq, rsq.Trace().Mean(), 0.5)
	assert.InDelta(t, wantE, energy.Trace().Mean(), 1.0)
	require.NoError(t, d.Path().CheckLinks())
}

func TestGrandCanonicalSmoke(t *testing.T) {
	params := DefaultParams()
	params.Particles = 3
	params.TimeSlices = 8
	params.Mbar = 3
	params.Seed = 99
	// Close and Remove carry a 1/(C*Mbar*N*M)-type weight; at C = 1 the
	// diagonal sector is almost never reached in a run this short.
	params.WormConstant = 1e-3

	d, err := NewSimulation(params)
	require.NoError(t, err)

	sector := NewSectorEstimator(d)
	winding := NewWindingEstimator(d)
	d.AddEstimator(sector)
	d.AddEstimator(winding)

	d.Equilibrate(50)
	d.Run(300)

	require.NoError(t, d.Path().CheckLinks())
	assert.Greater(t, d.Stats.TotAttempted, uint64(0))
	assert.GreaterOrEqual(t, d.Stats.TotAttempted, d.Stats.TotAccepted)

	frac := sector.Trace().Mean()
	assert.GreaterOrEqual(t, frac, 0.0)
	assert.LessOrEqual(t, frac, 1.0)
	assert.Greater(t, frac, 0.0, "the simulation must revisit the diagonal sector")

	report := d.ReportMoves()
	assert.Contains(t, report, "total")
	assert.Contains(t, report, "swap head")
}

func TestCanonicalConservesParticles(t *testing.T) {
	params := DefaultParams()
	params.Canonical = true
	params.Particles = 2
	params.TimeSlices = 8
	params.Mbar = 5
	params.Seed = 7

	d, err := NewSimulation(params)
	require.NoError(t, err)

	want := params.Particles * params.TimeSlices
	for i := 0; i < 200; i++ {
		d.Sweep()
		if !d.Path().Worm.Exists {
			require.Equal(t, want, d.Path().NumBeads(),
				"diagonal canonical configurations must hold N*M beads (sweep %d)", i)
		}
	}
	require.NoError(t, d.Path().CheckLinks())
}

func TestDriverStepAttemptsEveryDraw(t *testing.T) {
	d, _ := harmonicDriver(t, 5)
	// Only Any-sector moves are installed, so every step attempts.
	before := d.Stats.TotAttempted
	for i := 0; i < 100; i++ {
		d.Step()
	}
	assert.Equal(t, before+100, d.Stats.TotAttempted)
}

func TestReportMovesFormat(t *testing.T) {
	d, _ := harmonicDriver(t, 6)
	d.Equilibrate(5)
	report := d.ReportMoves()
	for _, name := range []string{"center of mass", "staging", "bisection", "total"} {
		assert.True(t, strings.Contains(report, name), "report missing %q", name)
	}
}
