package photon

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
)

// LocalOpts packages together the parameters of a simulated quantum channel.
// The zero value is an ideal, noiseless channel seeded from system entropy.
type LocalOpts struct {
	// Noise is the probability that a photon's measured bit is flipped in
	// transit, independently of the bases used.
	Noise float64

	// Intercept is the probability that an eavesdropper captures a photon,
	// measures it in a randomly chosen basis, and re-sends a photon prepared
	// in that basis with the bit it observed. Full interception produces a
	// QBER of about 25%.
	Intercept float64

	// Seed seeds the simulator iff Seeded is set.
	Seed   uint64
	Seeded bool
}

// A Local is an Executor that simulates an idealized BB84 channel in-process.
// Given the same options and seed it produces the same measurements. A Local
// is safe for concurrent use, though concurrent callers interleave their draws
// from its generator.
type Local struct {
	mu        sync.Mutex
	noise     distuv.Bernoulli
	intercept distuv.Bernoulli
	coin      distuv.Bernoulli
}

// NewLocal returns a simulated channel configured according to opts.
func NewLocal(opts LocalOpts) (*Local, error) {
	if opts.Noise < 0 || opts.Noise > 1 {
		return nil, fmt.Errorf("noise probability %v outside [0, 1]", opts.Noise)
	}
	if opts.Intercept < 0 || opts.Intercept > 1 {
		return nil, fmt.Errorf("intercept probability %v outside [0, 1]", opts.Intercept)
	}
	seed := opts.Seed
	if !opts.Seeded {
		var b [8]byte
		if _, err := crand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("seeding simulator: %w", err)
		}
		seed = binary.LittleEndian.Uint64(b[:])
	}
	src := rand.NewSource(seed)
	return &Local{
		noise:     distuv.Bernoulli{P: opts.Noise, Src: src},
		intercept: distuv.Bernoulli{P: opts.Intercept, Src: src},
		coin:      distuv.Bernoulli{P: 0.5, Src: src},
	}, nil
}

// Execute implements the Executor interface.
func (l *Local) Execute(ctx context.Context, b Batch) (bitmap.Dense, error) {
	if err := b.Validate(); err != nil {
		return bitmap.Empty(), fmt.Errorf("%w: %w", ErrExecutor, err)
	}
	if err := ctx.Err(); err != nil {
		return bitmap.Empty(), fmt.Errorf("%w: %w", ErrExecutor, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	measured := bitmap.NewDense(nil, b.Len())
	for i := 0; i < b.Len(); i++ {
		measured.Set(i, l.transmit(b.Triple(i)))
	}
	return measured, nil
}

func (l *Local) transmit(t Triple) bool {
	if draw(l.intercept) {
		eveBasis := l.toss()
		eveBit := Measure(Triple{Bit: t.Bit, SenderBasis: t.SenderBasis, ReceiverBasis: eveBasis}, l.toss)
		t = Triple{Bit: eveBit, SenderBasis: eveBasis, ReceiverBasis: t.ReceiverBasis}
	}
	bit := Measure(t, l.toss)
	if draw(l.noise) {
		bit = !bit
	}
	return bit
}

func (l *Local) toss() bool {
	return draw(l.coin)
}

func draw(b distuv.Bernoulli) bool {
	return b.Rand() == 1
}
