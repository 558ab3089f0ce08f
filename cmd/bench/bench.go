// bench.go runs a BB84 key negotiation for each entry in the cartesian product
// of a collection of different tuning parameters, e.g. channel noise and
// sample size, and outputs a CSV of relevant statistics for each different
// combination, e.g. photons sent and sampled QBER.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/template"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alan-christopher/bb84sim/bb84"
	"github.com/alan-christopher/bb84sim/bb84/photon"
	"github.com/alan-christopher/bb84sim/bb84/random"
)

var (
	batch     = flag.IntSlice("batch", []int{bb84.DefaultBatchSize}, "The photons to send per round.")
	keyBits   = flag.IntSlice("keyBits", []int{1024}, "The length of key to negotiate.")
	sample    = flag.IntSlice("sample", []int{256}, "The sifted bits to disclose when estimating the QBER.")
	noise     = flag.Float64Slice("noise", []float64{0, 0.01, 0.05}, "The probability the channel flips a bit.")
	intercept = flag.Float64Slice("intercept", []float64{0}, "The probability an eavesdropper intercepts a photon.")
	threshold = flag.Float64Slice("threshold", []float64{bb84.DefaultQBERThreshold}, "The highest sampled QBER to accept.")

	seed     = flag.Int64("seed", 42, "Seed for every experiment, so that rows are reproducible.")
	parallel = flag.Int("parallel", 4, "The number of experiments to run at once.")
	verbose  = flag.Bool("verbose", false, "Log the progress of each negotiation to stderr.")
)

var (
	inputs = []string{"batch", "keyBits", "sample", "noise", "intercept", "threshold"}
	// TODO: consider using reflection to pull this out of the Experiment data
	//   type.
	columns = []string{"Batch", "KeyBits", "Sample", "Noise", "Intercept", "Threshold",
		"RawTransmissions", "Rounds", "Sifted", "EmpiricalQBER", "QBERUpperBound",
		"FinalKeyBits", "Succeeded", "Failure"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	Batch, KeyBits, Sample int
	Noise, Intercept       float64
	Threshold              float64

	// Fields corresponding to experiment results
	RawTransmissions int
	Rounds           int
	Sifted           int
	EmpiricalQBER    float64
	QBERUpperBound   float64
	FinalKeyBits     int
	Succeeded        bool
	Failure          string
}

func main() {
	flag.Parse()
	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("Building logger: %v", err)
		}
	}

	var args [][]any
	for _, inp := range inputs {
		args = append(args, lookupInput(inp))
	}
	var exps []*Experiment
	applyCartesian(func(args []any) {
		exps = append(exps, &Experiment{
			Batch:     args[inpIndex("batch")].(int),
			KeyBits:   args[inpIndex("keyBits")].(int),
			Sample:    args[inpIndex("sample")].(int),
			Noise:     args[inpIndex("noise")].(float64),
			Intercept: args[inpIndex("intercept")].(float64),
			Threshold: args[inpIndex("threshold")].(float64),
		})
	}, args)

	if err := run(context.Background(), exps, *seed, *parallel, logger); err != nil {
		log.Fatalf("Running experiments: %v", err)
	}
	if err := writeCSV(os.Stdout, exps); err != nil {
		log.Fatalf("Writing results: %v", err)
	}
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

// run benches every experiment, at most limit at a time. A failed negotiation
// is recorded in its row; only failures to set up an experiment stop the run.
func run(ctx context.Context, exps []*Experiment, seed int64, limit int, logger *zap.Logger) error {
	if limit < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", limit)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, exp := range exps {
		exp := exp
		g.Go(func() error {
			err := bench(ctx, exp, seed, logger)
			switch {
			case err == nil:
			case errors.Is(err, bb84.ErrQBERExceeded), errors.Is(err, bb84.ErrAborted):
				logger.Debug("experiment failed", zap.Any("experiment", exp), zap.Error(err))
			default:
				return fmt.Errorf("benching %+v: %w", *exp, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func bench(ctx context.Context, exp *Experiment, seed int64, logger *zap.Logger) error {
	exec, err := photon.NewLocal(photon.LocalOpts{
		Noise:     exp.Noise,
		Intercept: exp.Intercept,
		Seed:      uint64(seed),
		Seeded:    true,
	})
	if err != nil {
		return err
	}
	res, err := bb84.Negotiate(ctx, bb84.Opts{
		KeyBits:       exp.KeyBits,
		SampleBits:    exp.Sample,
		BatchSize:     exp.Batch,
		QBERThreshold: exp.Threshold,
		Rand:          random.New(seed),
		Executor:      exec,
		Logger:        logger.With(zap.Int("batch", exp.Batch), zap.Float64("noise", exp.Noise)),
	})
	exp.Succeeded = err == nil
	if err != nil {
		exp.Failure = err.Error()
		return err
	}
	exp.RawTransmissions = res.RawTransmissions
	exp.Rounds = res.Rounds
	exp.Sifted = res.SiftedBeforeSample
	exp.EmpiricalQBER = res.QBER
	exp.QBERUpperBound = res.QBERUpperBound
	exp.FinalKeyBits = res.Key.Size()
	return nil
}

func writeCSV(w io.Writer, exps []*Experiment) error {
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	if _, err := fmt.Fprintln(w, header()); err != nil {
		return err
	}
	for _, exp := range exps {
		if err := tmpl.Execute(w, exp); err != nil {
			return fmt.Errorf("BUG: could not fill in line template: %w", err)
		}
	}
	return nil
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		if c == "Failure" {
			els = append(els, "{{printf \"%q\" ."+c+"}}")
			continue
		}
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string) []any {
	var r []any
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatalf("Unknown type for input %s", name)
	}
	return r
}

func applyCartesian(f func([]any), args [][]any) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]any, len(args))
		r := make([][]any, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]any, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
