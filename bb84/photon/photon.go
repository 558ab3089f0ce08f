// Package photon provides the quantum half of a BB84 exchange: preparing a
// photon in the sender's basis and measuring it in the receiver's.
package photon

import (
	"context"
	"errors"
	"fmt"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
)

//go:generate mockgen -package=photon -destination=mocks.go -source=./photon.go

var (
	// ErrExecutor marks every failure of an Executor to produce measurements
	// for a batch.
	ErrExecutor = errors.New("channel executor failed")

	// ErrNoBackend is returned when no execution backend is eligible to run a
	// batch.
	ErrNoBackend = fmt.Errorf("%w: no operational backend", ErrExecutor)
)

// A Triple describes a single photon transmission: the logical bit the sender
// encodes, the basis it is encoded in, and the basis the receiver measures
// in. Bases are false (0) for rectilinear and true (1) for diagonal.
type Triple struct {
	Bit           bool
	SenderBasis   bool
	ReceiverBasis bool
}

// A Batch is an ordered sequence of Triples, stored column-wise. All three
// columns must have the same size.
type Batch struct {
	Bits          bitmap.Dense
	SenderBases   bitmap.Dense
	ReceiverBases bitmap.Dense
}

// Len returns the number of triples in b.
func (b Batch) Len() int {
	return b.Bits.Size()
}

// Triple returns the i-th triple of b.
func (b Batch) Triple(i int) Triple {
	return Triple{
		Bit:           b.Bits.Get(i),
		SenderBasis:   b.SenderBases.Get(i),
		ReceiverBasis: b.ReceiverBases.Get(i),
	}
}

// Validate checks that the columns of b agree in length.
func (b Batch) Validate() error {
	if b.SenderBases.Size() != b.Len() || b.ReceiverBases.Size() != b.Len() {
		return fmt.Errorf("batch columns disagree in length: bits %d, sender bases %d, receiver bases %d",
			b.Len(), b.SenderBases.Size(), b.ReceiverBases.Size())
	}
	return nil
}

// An Executor transmits batches of photons and reports what the receiver
// measured.
type Executor interface {
	// Execute returns one measured bit per triple of b, in the same order.
	// Implementations never return a partial result: on failure the error
	// wraps ErrExecutor.
	Execute(ctx context.Context, b Batch) (bitmap.Dense, error)
}

// Measure returns the bit observed by measuring a photon prepared as t
// describes. When the bases disagree the outcome is uniformly random, and coin
// is consulted for it.
func Measure(t Triple, coin func() bool) bool {
	if t.SenderBasis == t.ReceiverBasis {
		return t.Bit
	}
	return coin()
}
