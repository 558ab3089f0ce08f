// Package random provides the reproducible randomness that drives a BB84
// negotiation: the sender's bits and bases, the receiver's bases, and the
// choice of which sifted bits are disclosed for error estimation.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/seehuhn/mt19937"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
)

// A Source is a seedable stream of random bits. Every bit costs exactly one
// draw from the underlying generator, so the stream produced for a given seed
// depends only on how many values have been drawn, never on how the draws
// were batched. A Source is not safe for concurrent use.
type Source struct {
	r *rand.Rand
}

// New returns a Source whose output is fully determined by seed.
func New(seed int64) *Source {
	mt := mt19937.New()
	mt.Seed(seed)
	return &Source{r: rand.New(mt)}
}

// NewUnseeded returns a Source seeded from the operating system's entropy
// pool. Its output is valid but not reproducible.
func NewUnseeded() *Source {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand only fails if the OS entropy source is broken.
		panic(fmt.Sprintf("reading system entropy: %v", err))
	}
	return New(int64(binary.LittleEndian.Uint64(b[:])))
}

// Bits returns the next m uniformly random bits.
func (s *Source) Bits(m int) bitmap.Dense {
	d := bitmap.NewDense(nil, m)
	for i := 0; i < m; i++ {
		if s.r.Int63()&1 == 1 {
			d.Set(i, true)
		}
	}
	return d
}

// Bases returns the next m uniformly random basis choices, 0 for the
// rectilinear basis and 1 for the diagonal one.
func (s *Source) Bases(m int) bitmap.Dense {
	return s.Bits(m)
}

// Sample draws k distinct indices uniformly from [0, n), in the order they were
// drawn.
func (s *Source) Sample(n, k int) ([]int, error) {
	if k < 0 || k > n {
		return nil, fmt.Errorf("sampling %d of %d indices", k, n)
	}
	// Partial Fisher-Yates over a sparse permutation.
	perm := make(map[int]int, k)
	at := func(i int) int {
		if v, ok := perm[i]; ok {
			return v
		}
		return i
	}
	r := make([]int, 0, k)
	for i := 0; i < k; i++ {
		j := i + s.r.Intn(n-i)
		vi, vj := at(i), at(j)
		perm[i], perm[j] = vj, vi
		r = append(r, vj)
	}
	return r, nil
}

// Uint64 returns the next raw 64-bit value.
func (s *Source) Uint64() uint64 {
	return s.r.Uint64()
}
