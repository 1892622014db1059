// Package pimc implements the update (move) subsystem of a worm-algorithm
// path-integral Monte Carlo simulation for continuous-space bosons at
// finite temperature.
//
// A configuration is a set of discretized imaginary-time worldlines held
// by a Path: M time slices of beads connected by next/prev links, with
// periodic boundary conditions both in space and in imaginary time. The
// simulation alternates between the diagonal sector (all worldlines are
// closed loops) and the off-diagonal sector (exactly one worldline is
// open, with a distinguished head and tail - the worm).
//
// Moves are reversible Metropolis-Hastings transitions. Each move
// tentatively mutates the shared Path, queries an Action for the old and
// new contributions, and either commits or restores the configuration
// bit-for-bit. The moves fall into four families: diagonal updates
// (CenterOfMass, Displace, Staging, Bisection, ...), sector changers
// (Open/Close, Insert/Remove), worm extensions (Advance/Recede of head
// and tail), and the permutation moves (SwapHead, SwapTail) that sample
// Bose statistics.
//
// The driver serializes all moves against a single Path; nothing in this
// package is safe for concurrent use on the same configuration.
package pimc
