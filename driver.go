package pimc

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// weightedMove pairs a move with its selection probability weight.
type weightedMove struct {
	move   Move
	weight float64
}

// Driver owns one simulation: the Path, the Action, the RNG, the shared
// statistics, and the move table. It serializes every update, so a
// single Driver must never be shared between goroutines.
type Driver struct {
	path   *Path
	action Action
	rng    *rand.Rand
	consts *SimConstants

	Stats *MoveStatistics

	moves  []weightedMove
	cumul  []float64
	estims []Estimator
}

// NewDriver wires a driver around existing collaborators with an empty
// move table.
func NewDriver(p *Path, a Action, rng *rand.Rand, sc *SimConstants) *Driver {
	return &Driver{
		path:   p,
		action: a,
		rng:    rng,
		consts: sc,
		Stats:  &MoveStatistics{},
	}
}

// AddMove appends a move with the given selection weight.
func (d *Driver) AddMove(m Move, weight float64) {
	d.moves = append(d.moves, weightedMove{m, weight})
	d.rebuildTable()
}

func (d *Driver) rebuildTable() {
	d.cumul = d.cumul[:0]
	for _, wm := range d.moves {
		d.cumul = append(d.cumul, wm.weight)
	}
	floats.CumSum(d.cumul, d.cumul)
	total := d.cumul[len(d.cumul)-1]
	floats.Scale(1.0/total, d.cumul)
	d.cumul[len(d.cumul)-1] = 1.0
}

// AddEstimator registers an estimator sampled once per sweep.
func (d *Driver) AddEstimator(e Estimator) {
	d.estims = append(d.estims, e)
}

// Moves returns the installed moves for reporting.
func (d *Driver) Moves() []Move {
	out := make([]Move, len(d.moves))
	for i, wm := range d.moves {
		out[i] = wm.move
	}
	return out
}

// Step draws one move from the table and attempts it. Moves gated out
// of the current sector simply reject; the table is not filtered.
func (d *Driver) Step() bool {
	if len(d.moves) == 0 {
		return false
	}
	idx := sort.SearchFloat64s(d.cumul, d.rng.Float64())
	if idx >= len(d.moves) {
		idx = len(d.moves) - 1
	}
	return d.moves[idx].move.AttemptMove()
}

// Sweep attempts on the order of one update per bead, then samples the
// registered estimators.
func (d *Driver) Sweep() {
	n := d.path.NumBeads()
	if n < d.path.M {
		n = d.path.M
	}
	for i := 0; i < n; i++ {
		d.Step()
	}
	for _, e := range d.estims {
		e.Measure()
	}
}

// Equilibrate runs sweeps without reporting.
func (d *Driver) Equilibrate(sweeps int) {
	for i := 0; i < sweeps; i++ {
		d.Sweep()
	}
}

// Run performs production sweeps, logging occasional progress the way
// long simulations expect.
func (d *Driver) Run(sweeps int) {
	report := sweeps / 10
	if report == 0 {
		report = sweeps + 1
	}
	for i := 0; i < sweeps; i++ {
		d.Sweep()
		if (i+1)%report == 0 {
			log.Printf("sweep %d/%d: acceptance %.3f, %d beads, %s sector",
				i+1, sweeps, d.Stats.TotAcceptanceRatio(), d.path.NumBeads(), d.sector())
		}
	}
}

func (d *Driver) sector() string {
	if d.path.Worm.Exists {
		return "off-diagonal"
	}
	return "diagonal"
}

// ReportMoves returns a formatted per-move acceptance table.
func (d *Driver) ReportMoves() string {
	out := ""
	for _, wm := range d.moves {
		m := wm.move
		out += fmt.Sprintf(" %-16s attempted %9d accepted %9d ratio %.4f\n",
			m.Name(), m.NumAttempted(), m.NumAccepted(), m.AcceptanceRatio())
	}
	out += fmt.Sprintf(" %-16s attempted %9d accepted %9d ratio %.4f\n",
		"total", d.Stats.TotAttempted, d.Stats.TotAccepted, d.Stats.TotAcceptanceRatio())
	return out
}

// NewSimulation assembles the standard collaborators and move table for
// the given parameters: path, primitive action, RNG, driver. It mirrors
// the usual grand-canonical worm-algorithm mix; in canonical mode the
// particle-number-changing moves are replaced by their canonical
// variants and the worldlines start in a single permutation cycle so
// swap moves can reach every sector of configuration space.
func NewSimulation(params Params) (*Driver, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	sc, err := params.Constants()
	if err != nil {
		return nil, err
	}
	rng := NewRNG(params.Seed)

	log.Printf("initializing %d particles on %d slices at T=%.4f (tau=%.4f)",
		params.Particles, params.TimeSlices, params.Temperature, sc.Tau)

	init := make([]dVec, params.Particles)
	for i := range init {
		for d := 0; d < NDIM; d++ {
			init[i][d] = sc.Box.Side[d] * (rng.Float64() - 0.5)
		}
	}
	var path *Path
	if params.Canonical {
		path, err = NewCyclicPath(sc.M, sc.Box, init)
	} else {
		path, err = NewPath(sc.M, sc.Box, init)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build worldlines: %w", err)
	}

	var ext ExternalPotential = FreePotential{}
	if params.Omega > 0 {
		ext = HarmonicPotential{Omega: params.Omega}
	}
	action := NewPrimitiveAction(path, sc, ext, nil)

	d := NewDriver(path, action, rng, sc)
	d.AddMove(NewCenterOfMassMove(path, action, rng, sc, d.Stats), 0.05)
	d.AddMove(NewStagingMove(path, action, rng, sc, d.Stats), 0.15)
	d.AddMove(NewBisectionMove(path, action, rng, sc, d.Stats), 0.10)
	d.AddMove(NewDisplaceMove(path, action, rng, sc, d.Stats), 0.02)
	d.AddMove(NewEndStagingMove(path, action, rng, sc, d.Stats), 0.05)
	d.AddMove(NewSwapHeadMove(path, action, rng, sc, d.Stats), 0.10)
	d.AddMove(NewSwapTailMove(path, action, rng, sc, d.Stats), 0.10)
	if params.Canonical {
		d.AddMove(NewCanonicalOpenMove(path, action, rng, sc, d.Stats), 0.15)
		d.AddMove(NewCanonicalCloseMove(path, action, rng, sc, d.Stats), 0.15)
		d.AddMove(NewSwapBreakMove(path, action, rng, sc, d.Stats), 0.05)
		d.AddMove(NewMidStagingMove(path, action, rng, sc, d.Stats), 0.08)
	} else {
		d.AddMove(NewOpenMove(path, action, rng, sc, d.Stats), 0.10)
		d.AddMove(NewCloseMove(path, action, rng, sc, d.Stats), 0.10)
		d.AddMove(NewInsertMove(path, action, rng, sc, d.Stats), 0.04)
		d.AddMove(NewRemoveMove(path, action, rng, sc, d.Stats), 0.04)
		d.AddMove(NewAdvanceHeadMove(path, action, rng, sc, d.Stats), 0.05)
		d.AddMove(NewRecedeHeadMove(path, action, rng, sc, d.Stats), 0.05)
		d.AddMove(NewAdvanceTailMove(path, action, rng, sc, d.Stats), 0.05)
		d.AddMove(NewRecedeTailMove(path, action, rng, sc, d.Stats), 0.05)
	}

	log.Printf("move table ready: %d moves", len(d.moves))
	return d, nil
}

// Path exposes the driver's configuration to estimators and tests.
func (d *Driver) Path() *Path { return d.path }

// Action exposes the driver's action.
func (d *Driver) Action() Action { return d.action }

// Constants exposes the simulation constants.
func (d *Driver) Constants() *SimConstants { return d.consts }

// RNG exposes the driver's random number generator.
func (d *Driver) RNG() *rand.Rand { return d.rng }

// NewCyclicPath builds a diagonal configuration whose worldlines form a
// single N-cycle: slot i at the last slice links to slot i+1 at slice
// zero. Canonical runs start here so permutation sectors are reachable
// without particle-number fluctuations.
func NewCyclicPath(m int, box Box, init []dVec) (*Path, error) {
	p, err := NewPath(m, box, init)
	if err != nil {
		return nil, err
	}
	n := len(init)
	if n == 1 {
		return p, nil
	}
	for i := 0; i < n; i++ {
		last := BeadLocator{m - 1, i}
		first := BeadLocator{0, (i + 1) % n}
		p.MakeLink(last, first)
	}
	if err := p.CheckLinks(); err != nil {
		return nil, errors.New("cyclic initialization produced a broken link graph")
	}
	return p, nil
}
