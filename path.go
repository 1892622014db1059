package pimc

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// BeadLocator identifies a bead as (time slice, within-slice slot).
// Slots are stable: deleting a bead leaves a hole that a later add may
// reuse, so a locator saved by a move stays valid across undo.
type BeadLocator struct {
	Slice int
	Ptcl  int
}

// NoBead is the sentinel locator for a missing bead or broken link.
var NoBead = BeadLocator{-1, -1}

// None reports whether b is the sentinel.
func (b BeadLocator) None() bool { return b.Ptcl < 0 }

// Worm marks the two dangling ends of the single open worldline in the
// off-diagonal sector. Head sits at the later imaginary time: following
// next links from Tail eventually reaches Head, and the gap (the missing
// links) runs forward from Head back around to Tail.
type Worm struct {
	Head   BeadLocator
	Tail   BeadLocator
	Exists bool
}

// Path is the worldline container: bead positions on M imaginary-time
// slices, the next/prev link graph, and the worm state. All moves borrow
// one Path; access is strictly single-threaded.
type Path struct {
	M   int
	Box Box

	pos    [][]dVec
	beadOn [][]bool
	next   [][]BeadLocator
	prev   [][]BeadLocator

	numBeads []int // active beads per slice

	Worm Worm
}

// NewPath builds a diagonal configuration of len(init) particles, each
// started as a constant-position loop of M beads closed in imaginary
// time.
func NewPath(m int, box Box, init []dVec) (*Path, error) {
	if m < 2 {
		return nil, errors.New("need at least two time slices")
	}
	if len(init) == 0 {
		return nil, errors.New("need at least one particle")
	}
	p := &Path{
		M:        m,
		Box:      box,
		pos:      make([][]dVec, m),
		beadOn:   make([][]bool, m),
		next:     make([][]BeadLocator, m),
		prev:     make([][]BeadLocator, m),
		numBeads: make([]int, m),
	}
	n := len(init)
	for s := 0; s < m; s++ {
		p.pos[s] = make([]dVec, n)
		p.beadOn[s] = make([]bool, n)
		p.next[s] = make([]BeadLocator, n)
		p.prev[s] = make([]BeadLocator, n)
		for i := 0; i < n; i++ {
			p.pos[s][i] = box.Put(init[i])
			p.beadOn[s][i] = true
			p.next[s][i] = BeadLocator{(s + 1) % m, i}
			p.prev[s][i] = BeadLocator{(s - 1 + m) % m, i}
		}
		p.numBeads[s] = n
	}
	return p, nil
}

// Pos returns the position of bead b.
func (p *Path) Pos(b BeadLocator) dVec { return p.pos[b.Slice][b.Ptcl] }

// SetPos moves bead b to r. The caller is responsible for reducing r
// into the cell when that is wanted.
func (p *Path) SetPos(b BeadLocator, r dVec) { p.pos[b.Slice][b.Ptcl] = r }

// BeadOn reports whether slot b currently holds an active bead.
func (p *Path) BeadOn(b BeadLocator) bool {
	return !b.None() && b.Ptcl < len(p.beadOn[b.Slice]) && p.beadOn[b.Slice][b.Ptcl]
}

// Next returns the forward link of b (NoBead at the worm head).
func (p *Path) Next(b BeadLocator) BeadLocator { return p.next[b.Slice][b.Ptcl] }

// Prev returns the backward link of b (NoBead at the worm tail).
func (p *Path) Prev(b BeadLocator) BeadLocator { return p.prev[b.Slice][b.Ptcl] }

// SetNext overwrites the forward link of b without touching the target.
func (p *Path) SetNext(b, to BeadLocator) { p.next[b.Slice][b.Ptcl] = to }

// SetPrev overwrites the backward link of b without touching the target.
func (p *Path) SetPrev(b, to BeadLocator) { p.prev[b.Slice][b.Ptcl] = to }

// MakeLink connects a -> b in both directions.
func (p *Path) MakeLink(a, b BeadLocator) {
	p.next[a.Slice][a.Ptcl] = b
	p.prev[b.Slice][b.Ptcl] = a
}

// BreakLink cuts the forward link of a, leaving both ends dangling.
func (p *Path) BreakLink(a BeadLocator) {
	nb := p.next[a.Slice][a.Ptcl]
	if !nb.None() {
		p.prev[nb.Slice][nb.Ptcl] = NoBead
	}
	p.next[a.Slice][a.Ptcl] = NoBead
}

// AddBead activates a bead at slice s, reusing the lowest free slot or
// growing the slice, and returns its locator. The bead starts unlinked.
func (p *Path) AddBead(s int, r dVec) BeadLocator {
	slot := -1
	for i, on := range p.beadOn[s] {
		if !on {
			slot = i
			break
		}
	}
	if slot < 0 {
		slot = len(p.beadOn[s])
		p.pos[s] = append(p.pos[s], dVec{})
		p.beadOn[s] = append(p.beadOn[s], false)
		p.next[s] = append(p.next[s], NoBead)
		p.prev[s] = append(p.prev[s], NoBead)
	}
	b := BeadLocator{s, slot}
	p.activate(b, r)
	return b
}

// AddBeadAt reactivates the specific slot b. Used by undo paths to
// restore a deleted bead exactly where it was.
func (p *Path) AddBeadAt(b BeadLocator, r dVec) {
	if p.beadOn[b.Slice][b.Ptcl] {
		panic(fmt.Sprintf("pimc: AddBeadAt on active bead %v", b))
	}
	p.activate(b, r)
}

func (p *Path) activate(b BeadLocator, r dVec) {
	p.pos[b.Slice][b.Ptcl] = r
	p.beadOn[b.Slice][b.Ptcl] = true
	p.next[b.Slice][b.Ptcl] = NoBead
	p.prev[b.Slice][b.Ptcl] = NoBead
	p.numBeads[b.Slice]++
}

// AddNextBead creates a bead on the following slice at r and links
// b -> new.
func (p *Path) AddNextBead(b BeadLocator, r dVec) BeadLocator {
	nb := p.AddBead((b.Slice+1)%p.M, r)
	p.MakeLink(b, nb)
	return nb
}

// AddPrevBead creates a bead on the preceding slice at r and links
// new -> b.
func (p *Path) AddPrevBead(b BeadLocator, r dVec) BeadLocator {
	nb := p.AddBead((b.Slice-1+p.M)%p.M, r)
	p.MakeLink(nb, b)
	return nb
}

// DelBead deactivates b and cuts any links into it. The slot survives
// for reuse.
func (p *Path) DelBead(b BeadLocator) {
	if pb := p.prev[b.Slice][b.Ptcl]; !pb.None() {
		p.next[pb.Slice][pb.Ptcl] = NoBead
	}
	if nb := p.next[b.Slice][b.Ptcl]; !nb.None() {
		p.prev[nb.Slice][nb.Ptcl] = NoBead
	}
	p.next[b.Slice][b.Ptcl] = NoBead
	p.prev[b.Slice][b.Ptcl] = NoBead
	p.beadOn[b.Slice][b.Ptcl] = false
	p.numBeads[b.Slice]--
}

// NumBeadsAtSlice returns the number of active beads at slice s.
func (p *Path) NumBeadsAtSlice(s int) int { return p.numBeads[s] }

// SlotsAtSlice returns the slot capacity of slice s, active or not.
func (p *Path) SlotsAtSlice(s int) int { return len(p.beadOn[s]) }

// NumBeads returns the total number of active beads.
func (p *Path) NumBeads() int {
	n := 0
	for _, c := range p.numBeads {
		n += c
	}
	return n
}

// TrueParticles returns the instantaneous particle number: total active
// beads divided by the number of slices. Integral in the diagonal
// sector, fractional while a worm is present.
func (p *Path) TrueParticles() float64 {
	return float64(p.NumBeads()) / float64(p.M)
}

// RandomBead draws a uniformly random slice and then a uniformly random
// active bead on it, or NoBead if the chosen slice is empty.
func (p *Path) RandomBead(rng *rand.Rand) BeadLocator {
	s := rng.Intn(p.M)
	if p.numBeads[s] == 0 {
		return NoBead
	}
	for {
		i := rng.Intn(len(p.beadOn[s]))
		if p.beadOn[s][i] {
			return BeadLocator{s, i}
		}
	}
}

// WormGap returns the number of missing links from the head forward
// around to the tail; M when head and tail share a slice.
func (p *Path) WormGap() int {
	g := (p.Worm.Tail.Slice - p.Worm.Head.Slice + p.M) % p.M
	if g == 0 {
		g = p.M
	}
	return g
}

// WormLength returns the number of links from the tail forward to the
// head; M when head and tail share a slice.
func (p *Path) WormLength() int {
	l := (p.Worm.Head.Slice - p.Worm.Tail.Slice + p.M) % p.M
	if l == 0 {
		l = p.M
	}
	return l
}

// Checksum returns a SHA-256 digest over the full configuration: slot
// layout, activity flags, positions to full floating precision, the
// link graph, and the worm state.
func (p *Path) Checksum() [32]byte {
	h := sha256.New()
	var buf [8]byte
	wi := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	wf := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	wi(p.M)
	for s := 0; s < p.M; s++ {
		wi(len(p.beadOn[s]))
		for i := range p.beadOn[s] {
			if p.beadOn[s][i] {
				wi(1)
				for d := 0; d < NDIM; d++ {
					wf(p.pos[s][i][d])
				}
			} else {
				wi(0)
			}
			wi(p.next[s][i].Slice)
			wi(p.next[s][i].Ptcl)
			wi(p.prev[s][i].Slice)
			wi(p.prev[s][i].Ptcl)
		}
	}
	if p.Worm.Exists {
		wi(1)
		wi(p.Worm.Head.Slice)
		wi(p.Worm.Head.Ptcl)
		wi(p.Worm.Tail.Slice)
		wi(p.Worm.Tail.Ptcl)
	} else {
		wi(0)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// CheckLinks scans the link graph for inconsistencies: a next link whose
// target's prev does not point back, links into inactive slots, or more
// than one dangling end pair. Returns nil for a healthy configuration.
func (p *Path) CheckLinks() error {
	heads, tails := 0, 0
	for s := 0; s < p.M; s++ {
		for i := range p.beadOn[s] {
			b := BeadLocator{s, i}
			if !p.beadOn[s][i] {
				if !p.next[s][i].None() || !p.prev[s][i].None() {
					return fmt.Errorf("inactive bead %v carries links", b)
				}
				continue
			}
			nb := p.next[s][i]
			if nb.None() {
				heads++
			} else {
				if !p.BeadOn(nb) {
					return fmt.Errorf("bead %v links forward to inactive %v", b, nb)
				}
				if nb.Slice != (s+1)%p.M {
					return fmt.Errorf("bead %v links forward across %d slices", b, nb.Slice-s)
				}
				if p.prev[nb.Slice][nb.Ptcl] != b {
					return fmt.Errorf("broken reciprocity at %v -> %v", b, nb)
				}
			}
			if p.prev[s][i].None() {
				tails++
			}
		}
	}
	if p.Worm.Exists {
		if heads != 1 || tails != 1 {
			return fmt.Errorf("off-diagonal sector with %d heads and %d tails", heads, tails)
		}
		if !p.BeadOn(p.Worm.Head) || !p.BeadOn(p.Worm.Tail) {
			return errors.New("worm endpoint is inactive")
		}
		if !p.Next(p.Worm.Head).None() || !p.Prev(p.Worm.Tail).None() {
			return errors.New("worm endpoint is not dangling")
		}
	} else if heads != 0 || tails != 0 {
		return fmt.Errorf("diagonal sector with %d dangling ends", heads)
	}
	return nil
}
