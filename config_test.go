package pimc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParamsValid(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())

	sc, err := p.Constants()
	require.NoError(t, err)
	assert.Equal(t, p.TimeSlices, sc.M)
	assert.InDelta(t, 1.0/(p.Temperature*float64(p.TimeSlices)), sc.Tau, 1e-12)
	assert.InDelta(t, 1.0/p.Temperature, sc.Beta(), 1e-12)
}

func TestLoadParamsOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(file, []byte(
		"temperature: 2.5\nparticles: 7\ncanonical: true\n"), 0o644))

	p, err := LoadParams(file)
	require.NoError(t, err)
	assert.Equal(t, 2.5, p.Temperature)
	assert.Equal(t, 7, p.Particles)
	assert.True(t, p.Canonical)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultParams().TimeSlices, p.TimeSlices)
	assert.Equal(t, DefaultParams().WormConstant, p.WormConstant)
}

func TestLoadParamsMissingFile(t *testing.T) {
	_, err := LoadParams(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadParamsBadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("temperature: [not a number"), 0o644))
	_, err := LoadParams(file)
	assert.Error(t, err)
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero temperature", func(p *Params) { p.Temperature = 0 }},
		{"one slice", func(p *Params) { p.TimeSlices = 1 }},
		{"no particles", func(p *Params) { p.Particles = 0 }},
		{"negative lambda", func(p *Params) { p.Lambda = -1 }},
		{"zero box", func(p *Params) { p.BoxSide = 0 }},
		{"zero mbar", func(p *Params) { p.Mbar = 0 }},
		{"zero worm constant", func(p *Params) { p.WormConstant = 0 }},
		{"negative winding", func(p *Params) { p.MaxWind = -1 }},
		{"negative omega", func(p *Params) { p.Omega = -1 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := DefaultParams()
			c.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestConstantsRejectOversizeMbar(t *testing.T) {
	p := DefaultParams()
	p.Mbar = p.TimeSlices + 1
	_, err := p.Constants()
	assert.Error(t, err)
}
