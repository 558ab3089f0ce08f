package bb84

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
	"github.com/alan-christopher/bb84sim/bb84/random"
)

func TestVerifyPartitionsSiftedBits(t *testing.T) {
	src := random.New(7)
	sender := src.Bits(300)
	v, err := Verify(sender, sender, 40, src, 0)
	require.NoError(t, err)

	require.Len(t, v.SampleIndices, 40)
	require.Len(t, v.KeptIndices, 260)
	require.Equal(t, 260, v.Kept.Size())
	require.True(t, sort.IntsAreSorted(v.KeptIndices))

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, v.SampleIndices...), v.KeptIndices...) {
		require.False(t, seen[i], "index %d appears twice", i)
		require.True(t, 0 <= i && i < 300)
		seen[i] = true
	}
	require.Len(t, seen, 300)
	require.True(t, bitmap.Equal(bitmap.Gather(sender, v.KeptIndices), v.Kept))
	require.Zero(t, v.QBER)
}

func TestVerifyQBER(t *testing.T) {
	sender := mustDense(t, "0000 0000 00")
	receiver := mustDense(t, "0100 0001 00")

	tcs := []struct {
		name      string
		threshold float64
		eErr      error
	}{
		{"below threshold", 0.5, nil},
		{"at threshold", 0.2, nil},
		{"above threshold", 0.1, ErrQBERExceeded},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			// Sampling everything makes the observed rate exact.
			v, err := Verify(sender, receiver, 10, random.New(1), tc.threshold)
			if tc.eErr != nil {
				require.ErrorIs(t, err, tc.eErr)
				require.Zero(t, v.Kept.Size())
				return
			}
			require.NoError(t, err)
			require.InDelta(t, 0.2, v.QBER, 1e-12)
			require.GreaterOrEqual(t, v.QBERUpperBound, v.QBER)
			require.LessOrEqual(t, v.QBERUpperBound, 1.0)
			require.Empty(t, v.KeptIndices)
			require.Zero(t, v.Kept.Size())
		})
	}
}

func TestVerifyWithoutSample(t *testing.T) {
	sender := mustDense(t, "1100 1010 1")
	receiver := mustDense(t, "0011 0101 0")
	src := random.New(3)
	v, err := Verify(sender, receiver, 0, src, 0)
	require.NoError(t, err)

	require.Zero(t, v.QBER)
	require.Equal(t, 1.0, v.QBERUpperBound)
	require.NotNil(t, v.SampleIndices)
	require.Empty(t, v.SampleIndices)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, v.KeptIndices)
	require.True(t, bitmap.Equal(receiver, v.Kept))

	// Nothing was drawn from src.
	require.Equal(t, random.New(3).Uint64(), src.Uint64())
}

func TestVerifyInsufficientSample(t *testing.T) {
	d := mustDense(t, "10101")
	_, err := Verify(d, d, 6, random.New(1), 1)
	require.ErrorIs(t, err, ErrInsufficientSample)

	_, err = Verify(d, mustDense(t, "1010"), 1, random.New(1), 1)
	require.ErrorIs(t, err, ErrInsufficientSample)

	_, err = Verify(d, d, -1, random.New(1), 1)
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestQBERUpperBound(t *testing.T) {
	// With no errors the bound has the closed form 1 - eps^(1/n).
	require.InDelta(t, 1-math.Pow(0.01, 1.0/100), qberUpperBound(0, 100, 0.01), 1e-9)
	require.Equal(t, 1.0, qberUpperBound(10, 10, 0.01))

	prev := 0.0
	for k := 0; k < 50; k += 5 {
		b := qberUpperBound(k, 50, 0.01)
		require.Greater(t, b, float64(k)/50)
		require.Greater(t, b, prev)
		prev = b
	}
}
