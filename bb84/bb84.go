// Package bb84 simulates key negotiation with the BB84 protocol: random bits
// are sent in random bases over a quantum channel, the transmissions whose
// bases disagree are discarded, a random sample of the rest is disclosed to
// estimate the channel's error rate, and what remains becomes the key.
//
// The package performs no error correction or privacy amplification. It is a
// simulation and demonstration engine, not a production QKD stack.
package bb84

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
	"github.com/alan-christopher/bb84sim/bb84/photon"
	"github.com/alan-christopher/bb84sim/bb84/random"
)

var (
	DefaultBatchSize     = 1024
	DefaultQBERThreshold = 0.02
	DefaultEpsilon       = 0.01
)

var (
	// ErrInvalidParameters is returned before any photons are sent if Opts
	// are nonsensical.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrInsufficientSample is returned if fewer sifted bits exist than the
	// sample requires.
	ErrInsufficientSample = errors.New("insufficient sifted bits to sample")

	// ErrQBERExceeded is returned if the error rate observed on the sample is
	// above the accepted threshold. It is an expected outcome on a noisy or
	// eavesdropped channel.
	ErrQBERExceeded = errors.New("channel error rate exceeded")

	// ErrInsufficientKey is returned if too few bits remain after sampling to
	// fill the key.
	ErrInsufficientKey = errors.New("insufficient final key material")

	// ErrAborted is returned when a caller-imposed limit, either
	// Opts.MaxRounds or the context, stops a negotiation.
	ErrAborted = errors.New("negotiation aborted")
)

// Opts packages together the arguments to Negotiate. Fields without a
// documented default must be set explicitly.
type Opts struct {
	// KeyBits is the length of the key to produce. Must be positive.
	KeyBits int

	// SampleBits is the number of sifted bits disclosed to estimate the QBER.
	// Must be non-negative. With no sample the QBER is reported as 0 and never
	// checked.
	SampleBits int

	// BatchSize is the number of photons sent per round. Must be positive.
	BatchSize int

	// QBERThreshold is the highest sampled error rate accepted. Must lie in
	// [0, 1].
	QBERThreshold float64

	// Rand drives every random choice of both parties. Seed it for
	// reproducible runs. Defaults to an unseeded source.
	Rand *random.Source

	// Executor transmits and measures the photons. Must be non-nil.
	Executor photon.Executor

	// Logger receives progress reports. Defaults to a no-op logger.
	Logger *zap.Logger

	// MaxRounds, if positive, caps the number of rounds before the
	// negotiation is abandoned with ErrAborted. By default rounds continue
	// until enough bits are sifted.
	MaxRounds int
}

func (o Opts) validate() error {
	switch {
	case o.KeyBits <= 0:
		return fmt.Errorf("%w: key length must be positive, got %d", ErrInvalidParameters, o.KeyBits)
	case o.SampleBits < 0:
		return fmt.Errorf("%w: sample size must be non-negative, got %d", ErrInvalidParameters, o.SampleBits)
	case o.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidParameters, o.BatchSize)
	case math.IsNaN(o.QBERThreshold) || o.QBERThreshold < 0 || o.QBERThreshold > 1:
		return fmt.Errorf("%w: QBER threshold %v outside [0, 1]", ErrInvalidParameters, o.QBERThreshold)
	case o.MaxRounds < 0:
		return fmt.Errorf("%w: round limit must be non-negative, got %d", ErrInvalidParameters, o.MaxRounds)
	case o.Executor == nil:
		return fmt.Errorf("%w: must provide Executor", ErrInvalidParameters)
	}
	return nil
}

// A Result is the outcome of a successful negotiation, together with the
// provenance of every bit in the key.
type Result struct {
	// Key is the receiver's copy of the negotiated key.
	Key bitmap.Dense

	// QBER is the error rate observed on the disclosed sample, and
	// QBERUpperBound a one-sided upper confidence bound on the channel's true
	// error rate at confidence 1-DefaultEpsilon.
	QBER           float64
	QBERUpperBound float64

	// RawTransmissions counts every photon sent, over Rounds rounds.
	RawTransmissions int
	Rounds           int

	// SiftedBeforeSample is the number of matching-basis transmissions
	// accumulated before sampling.
	SiftedBeforeSample int

	// SampleIndices and KeptIndices index into the sifted sequence.
	// SampleIndices lists the disclosed positions in the order they were
	// drawn; KeptIndices lists, in ascending order, the positions the key was
	// taken from.
	SampleIndices []int
	KeptIndices   []int
}
