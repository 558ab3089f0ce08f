package bb84

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alan-christopher/bb84sim/bb84/photon"
)

const namespace = "bb84"

var (
	roundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_total",
		Help:      "Rounds of photon transmission completed.",
	})
	rawTransmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "raw_transmissions_total",
		Help:      "Photons sent, whether or not they survived sifting.",
	})
	siftedBitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sifted_bits_total",
		Help:      "Transmissions kept because sender and receiver bases matched.",
	})
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Negotiations finished, by outcome.",
	}, []string{"outcome"})
	sampledQBER = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sampled_qber",
		Help:      "Error rate observed on the disclosed sample of successful negotiations.",
		Buckets:   []float64{0, 0.005, 0.01, 0.02, 0.05, 0.1, 0.15, 0.25, 0.5, 1},
	})
)

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidParameters):
		return "invalid"
	case errors.Is(err, photon.ErrExecutor):
		return "executor"
	case errors.Is(err, ErrQBERExceeded):
		return "qber_exceeded"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrInsufficientSample), errors.Is(err, ErrInsufficientKey):
		return "insufficient"
	}
	return "other"
}
