package bb84

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
	"github.com/alan-christopher/bb84sim/bb84/random"
)

// A Verification is the outcome of a successful QBER check.
type Verification struct {
	// Kept holds the receiver's bits at KeptIndices.
	Kept           bitmap.Dense
	QBER           float64
	QBERUpperBound float64
	SampleIndices  []int
	KeptIndices    []int
}

// Verify discloses sampleSize randomly chosen pairs of sifted bits, measures
// how often the two parties disagree on them, and fails with ErrQBERExceeded if
// that rate is above threshold. Otherwise the undisclosed bits are returned;
// sampled bits are never kept.
//
// A sampleSize of 0 draws nothing from src, reports a QBER of 0 with an upper
// bound of 1, and skips the threshold check.
func Verify(sender, receiver bitmap.Dense, sampleSize int, src *random.Source, threshold float64) (Verification, error) {
	n := sender.Size()
	if receiver.Size() != n {
		return Verification{}, fmt.Errorf("%w: sender has %d sifted bits, receiver %d",
			ErrInsufficientSample, n, receiver.Size())
	}
	if sampleSize < 0 {
		return Verification{}, fmt.Errorf("%w: negative sample size %d", ErrInvalidParameters, sampleSize)
	}
	if n < sampleSize {
		return Verification{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSample, n, sampleSize)
	}

	sampled := []int{}
	qber, bound := 0.0, 1.0
	if sampleSize > 0 {
		var err error
		sampled, err = src.Sample(n, sampleSize)
		if err != nil {
			return Verification{}, fmt.Errorf("sampling sifted bits: %w", err)
		}
		errs := bitmap.XOr(bitmap.Gather(sender, sampled), bitmap.Gather(receiver, sampled))
		mismatches := bitmap.CountOnes(errs)
		qber = float64(mismatches) / float64(sampleSize)
		bound = qberUpperBound(mismatches, sampleSize, DefaultEpsilon)
		if qber > threshold {
			return Verification{}, fmt.Errorf("%w: sampled QBER %.4f > %.4f", ErrQBERExceeded, qber, threshold)
		}
	}

	disclosed := bitmap.NewDense(nil, n)
	for _, i := range sampled {
		disclosed.Set(i, true)
	}
	// XNor against all-zeros is the complement.
	keep := bitmap.XNor(disclosed, bitmap.NewDense(nil, n))
	return Verification{
		Kept:           bitmap.Select(receiver, keep),
		QBER:           qber,
		QBERUpperBound: bound,
		SampleIndices:  sampled,
		KeptIndices:    bitmap.Indices(keep),
	}, nil
}

// qberUpperBound returns the one-sided Clopper-Pearson bound on the error rate
// of a channel that produced k errors in n trials: the true rate exceeds it
// with probability at most eps.
func qberUpperBound(k, n int, eps float64) float64 {
	if k >= n {
		return 1
	}
	b := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
	return b.Quantile(1 - eps)
}
