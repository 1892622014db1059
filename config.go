package pimc

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Params holds the user-facing configuration of a simulation. It maps
// one to one onto the YAML parameter files accepted by the CLI.
type Params struct {
	Temperature       float64 `yaml:"temperature"`
	TimeSlices        int     `yaml:"time_slices"`
	Particles         int     `yaml:"particles"`
	Lambda            float64 `yaml:"lambda"`
	BoxSide           float64 `yaml:"box_side"`
	ChemicalPotential float64 `yaml:"chemical_potential"`
	WormConstant      float64 `yaml:"worm_constant"`
	Mbar              int     `yaml:"mbar"`
	MaxWind           int     `yaml:"max_wind"`
	Omega             float64 `yaml:"omega"`
	Canonical         bool    `yaml:"canonical"`
	Seed              int64   `yaml:"seed"`
	EquilSweeps       int     `yaml:"equil_sweeps"`
	Sweeps            int     `yaml:"sweeps"`
}

// DefaultParams returns a small but physical configuration: a handful
// of free bosons in a periodic cube.
func DefaultParams() Params {
	return Params{
		Temperature:       1.0,
		TimeSlices:        16,
		Particles:         4,
		Lambda:            0.5,
		BoxSide:           6.0,
		ChemicalPotential: 0.0,
		WormConstant:      1.0,
		Mbar:              4,
		MaxWind:           1,
		Seed:              1973,
		EquilSweeps:       500,
		Sweeps:            5000,
	}
}

// LoadParams reads a YAML parameter file over the defaults, so files
// only need to name what they change.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read parameter file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("failed to parse parameter file: %w", err)
	}
	return p, nil
}

// Validate checks the parameters for physical and structural sanity.
func (p Params) Validate() error {
	if p.Temperature <= 0 {
		return errors.New("temperature must be positive")
	}
	if p.TimeSlices < 2 {
		return errors.New("need at least two time slices")
	}
	if p.Particles < 1 {
		return errors.New("need at least one particle")
	}
	if p.Lambda <= 0 {
		return errors.New("lambda must be positive")
	}
	if p.BoxSide <= 0 {
		return errors.New("box side must be positive")
	}
	if p.Mbar < 1 {
		return errors.New("mbar must be at least one")
	}
	if p.WormConstant <= 0 {
		return errors.New("worm constant must be positive")
	}
	if p.MaxWind < 0 {
		return errors.New("max_wind must be non-negative")
	}
	if p.Omega < 0 {
		return errors.New("omega must be non-negative")
	}
	return nil
}

// Constants derives the SimConstants for these parameters.
func (p Params) Constants() (*SimConstants, error) {
	beta := 1.0 / p.Temperature
	tau := beta / float64(p.TimeSlices)
	var box Box
	for d := 0; d < NDIM; d++ {
		box.Side[d] = p.BoxSide
	}
	sc, err := NewSimConstants(tau, p.Lambda, p.TimeSlices, p.Mbar,
		p.ChemicalPotential, p.WormConstant, box)
	if err != nil {
		return nil, err
	}
	if err := sc.SetMaxWind(p.MaxWind); err != nil {
		return nil, err
	}
	return sc, nil
}
