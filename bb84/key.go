package bb84

import (
	"fmt"
	"slices"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
)

// assemble truncates the verified bits to a key of n bits and records how it
// was derived.
func assemble(v Verification, n, raw, rounds, sifted int) (Result, error) {
	if v.Kept.Size() < n || len(v.KeptIndices) < n {
		return Result{}, fmt.Errorf("%w: %d bits remain after sampling, need %d",
			ErrInsufficientKey, v.Kept.Size(), n)
	}
	key, err := bitmap.Slice(v.Kept, 0, n)
	if err != nil {
		return Result{}, fmt.Errorf("truncating key: %w", err)
	}
	return Result{
		Key:                key,
		QBER:               v.QBER,
		QBERUpperBound:     v.QBERUpperBound,
		RawTransmissions:   raw,
		Rounds:             rounds,
		SiftedBeforeSample: sifted,
		SampleIndices:      v.SampleIndices,
		KeptIndices:        slices.Clone(v.KeptIndices[:n]),
	}, nil
}
