package main

import (
	"fmt"
	"log"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/paulsphys/pimc"
)

var (
	flagConfig    string
	flagSeed      int64
	flagSweeps    int
	flagEquil     int
	flagTemp      float64
	flagSlices    int
	flagParticles int
	flagCanonical bool
)

func main() {
	root := &cobra.Command{
		Use:   "pimc",
		Short: "Worm-algorithm path-integral Monte Carlo for bosons",
		RunE:  run,
	}
	root.Flags().StringVarP(&flagConfig, "config", "c", "", "YAML parameter file")
	root.Flags().Int64VarP(&flagSeed, "seed", "s", 0, "random seed (0 keeps the file/default value)")
	root.Flags().IntVar(&flagSweeps, "sweeps", 0, "production sweeps (0 keeps the file/default value)")
	root.Flags().IntVar(&flagEquil, "equil", 0, "equilibration sweeps (0 keeps the file/default value)")
	root.Flags().Float64VarP(&flagTemp, "temperature", "T", 0, "temperature (0 keeps the file/default value)")
	root.Flags().IntVarP(&flagSlices, "slices", "M", 0, "number of time slices")
	root.Flags().IntVarP(&flagParticles, "particles", "N", 0, "number of particles")
	root.Flags().BoolVar(&flagCanonical, "canonical", false, "fix the particle number")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	params := pimc.DefaultParams()
	if flagConfig != "" {
		var err error
		params, err = pimc.LoadParams(flagConfig)
		if err != nil {
			return err
		}
	}
	// Command line overrides the parameter file.
	if flagSeed != 0 {
		params.Seed = flagSeed
	}
	if flagSweeps != 0 {
		params.Sweeps = flagSweeps
	}
	if flagEquil != 0 {
		params.EquilSweeps = flagEquil
	}
	if flagTemp != 0 {
		params.Temperature = flagTemp
	}
	if flagSlices != 0 {
		params.TimeSlices = flagSlices
	}
	if flagParticles != 0 {
		params.Particles = flagParticles
	}
	if flagCanonical {
		params.Canonical = true
	}

	driver, err := pimc.NewSimulation(params)
	if err != nil {
		return err
	}

	energy := pimc.NewEnergyEstimator(driver)
	sector := pimc.NewSectorEstimator(driver)
	winding := pimc.NewWindingEstimator(driver)
	rsq := pimc.NewXSquaredEstimator(driver)
	driver.AddEstimator(energy)
	driver.AddEstimator(sector)
	driver.AddEstimator(winding)
	driver.AddEstimator(rsq)

	fmt.Println(" Worm-Algorithm Path Integral Monte Carlo")
	fmt.Println(" ----------------------------------------")
	fmt.Println(" Temperature          = ", params.Temperature)
	fmt.Println(" Number of slices M   = ", params.TimeSlices)
	fmt.Println(" Number of particles  = ", params.Particles)
	fmt.Println(" Worm constant C      = ", params.WormConstant)
	fmt.Println(" Random seed          = ", params.Seed)

	log.Printf("doing %d equilibration sweeps ...", params.EquilSweeps)
	driver.Equilibrate(params.EquilSweeps)
	log.Printf("doing %d production sweeps ...", params.Sweeps)
	driver.Run(params.Sweeps)

	fmt.Println()
	fmt.Println(" Move statistics:")
	fmt.Print(driver.ReportMoves())
	fmt.Println()
	if t := energy.Trace(); t.Len() > 0 {
		tau := t.AutocorrelationTime()
		fmt.Printf(" <E>      = %v +/- %v (tau_int %.1f)\n",
			t.Mean(), t.StdErr()*math.Sqrt(tau), tau)
	}
	if t := rsq.Trace(); t.Len() > 0 {
		fmt.Printf(" <r^2>    = %v +/- %v\n", t.Mean(), t.StdErr())
	}
	fmt.Printf(" diagonal fraction = %v\n", sector.Trace().Mean())
	fmt.Printf(" rho_s/rho         = %v\n", winding.SuperfluidFraction())
	return nil
}
