package bb84

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
	"github.com/alan-christopher/bb84sim/bb84/photon"
	"github.com/alan-christopher/bb84sim/bb84/random"
)

// Negotiate runs BB84 rounds until enough sifted bits exist for both the key
// and the QBER sample, verifies the channel on the sample, and assembles the
// key from the rest. Rounds run strictly one after another, each as a single
// blocking call to opts.Executor.
//
// Either a complete Result or an error is returned, never both. Nothing is
// retried: every failure ends the negotiation.
func Negotiate(ctx context.Context, opts Opts) (res Result, err error) {
	defer func() { runsTotal.WithLabelValues(outcome(err)).Inc() }()
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	src := opts.Rand
	if src == nil {
		src = random.NewUnseeded()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	target := opts.KeyBits + opts.SampleBits
	var sender, receiver bitmap.Dense
	var rounds, raw int
	for sender.Size() < target {
		if opts.MaxRounds > 0 && rounds >= opts.MaxRounds {
			logger.Warn("round limit reached", zap.Int("rounds", rounds), zap.Int("sifted", sender.Size()))
			return Result{}, fmt.Errorf("%w: sifted %d of %d bits in %d rounds",
				ErrAborted, sender.Size(), target, rounds)
		}
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrAborted, err)
		}
		s, r, err := runRound(ctx, opts.Executor, src, opts.BatchSize)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, fmt.Errorf("%w: during round %d: %w", ErrAborted, rounds+1, ctxErr)
			}
			return Result{}, fmt.Errorf("round %d: %w", rounds+1, err)
		}
		rounds++
		raw += opts.BatchSize
		sender.Append(s)
		receiver.Append(r)

		roundsTotal.Inc()
		rawTransmissionsTotal.Add(float64(opts.BatchSize))
		siftedBitsTotal.Add(float64(s.Size()))
		logger.Debug("round complete",
			zap.Int("round", rounds),
			zap.Int("sifted", s.Size()),
			zap.Int("accumulated", sender.Size()),
			zap.Int("target", target),
		)
	}

	v, err := Verify(sender, receiver, opts.SampleBits, src, opts.QBERThreshold)
	if err != nil {
		if errors.Is(err, ErrQBERExceeded) {
			logger.Warn("channel rejected", zap.Error(err), zap.Int("rounds", rounds))
		}
		return Result{}, fmt.Errorf("verifying QBER: %w", err)
	}
	res, err = assemble(v, opts.KeyBits, raw, rounds, sender.Size())
	if err != nil {
		return Result{}, err
	}
	sampledQBER.Observe(res.QBER)
	logger.Info("negotiated key",
		zap.Int("key bits", res.Key.Size()),
		zap.Float64("qber", res.QBER),
		zap.Float64("qber upper bound", res.QBERUpperBound),
		zap.Int("raw transmissions", res.RawTransmissions),
		zap.Int("rounds", res.Rounds),
	)
	return res, nil
}

// runRound sends one batch of m photons and returns both parties' sifted bits.
// The source is drawn from in a fixed order: sender bits, sender bases, then
// receiver bases.
func runRound(ctx context.Context, exec photon.Executor, src *random.Source, m int) (sender, receiver bitmap.Dense, err error) {
	b := photon.Batch{
		Bits:          src.Bits(m),
		SenderBases:   src.Bases(m),
		ReceiverBases: src.Bases(m),
	}
	measured, err := exec.Execute(ctx, b)
	if err != nil {
		if !errors.Is(err, photon.ErrExecutor) {
			err = fmt.Errorf("%w: %w", photon.ErrExecutor, err)
		}
		return bitmap.Empty(), bitmap.Empty(), err
	}
	if measured.Size() != m {
		return bitmap.Empty(), bitmap.Empty(), fmt.Errorf("%w: got %d measurements for %d photons",
			photon.ErrExecutor, measured.Size(), m)
	}
	sender, receiver, _ = Sift(b.Bits, b.SenderBases, b.ReceiverBases, measured)
	return sender, receiver, nil
}
