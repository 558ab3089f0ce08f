// bb84 negotiates a single key over a simulated or remote quantum channel and
// prints a summary of how it went.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/alan-christopher/bb84sim/bb84"
	"github.com/alan-christopher/bb84sim/bb84/photon"
	"github.com/alan-christopher/bb84sim/config"
)

// keyPreviewBits is how much of the key the summary shows.
const keyPreviewBits = 32

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	def := config.Default()
	root := &cobra.Command{
		Use:           "bb84",
		Short:         "Negotiate a key with the BB84 protocol",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if f, _ := cmd.Flags().GetString("config"); f != "" {
				v.SetConfigFile(f)
			}
			return v.BindPFlags(cmd.Flags())
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "load settings from this file (any format viper reads)")
	pf.String("log-level", def.LogLevel, "debug, info, warn or error")
	pf.String("executor", def.Executor, "photon executor: local or remote")
	pf.String("remote.address", def.Remote.Address, "address of the remote execution service")
	pf.String("remote.token", def.Remote.Token, "bearer token for the remote execution service")
	pf.String("remote.backend", def.Remote.Backend, "pin a remote backend instead of picking the least busy")
	pf.Int("remote.max-retries", def.Remote.MaxRetries, "retries per remote request; negative disables")
	pf.Duration("remote.retry-delay", def.Remote.RetryDelay, "minimum wait between remote retries")
	pf.Duration("remote.poll-interval", def.Remote.PollInterval, "how often to poll a queued remote job")

	root.AddCommand(newRunCmd(v, def), newBackendsCmd(v))
	return root
}

func newRunCmd(v *viper.Viper, def config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Negotiate one key and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.MetricsAddr != "" {
				shutdown := serveMetrics(cfg.MetricsAddr, logger)
				defer shutdown()
			}
			exec, err := cfg.Executor(logger)
			if err != nil {
				return fmt.Errorf("building executor: %w", err)
			}
			res, err := bb84.Negotiate(cmd.Context(), cfg.Opts(exec, logger))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	f.Int("key-bits", def.KeyBits, "length of the key to negotiate")
	f.Int("sample-bits", def.SampleBits, "sifted bits disclosed to estimate the QBER")
	f.Int("batch-size", def.BatchSize, "photons sent per round")
	f.Float64("qber-threshold", def.QBERThreshold, "highest sampled QBER accepted")
	f.Int("max-rounds", def.MaxRounds, "give up after this many rounds; 0 means never")
	f.Int64("seed", 0, "seed for a reproducible run; unseeded if not given")
	f.Float64("local.noise", def.Local.Noise, "probability the local channel flips a bit")
	f.Float64("local.intercept", def.Local.Intercept, "probability an eavesdropper intercepts a photon on the local channel")
	f.String("metrics-addr", def.MetricsAddr, "serve prometheus metrics on this address while running")
	return cmd
}

func newBackendsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the remote service's backends, most preferred first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if cfg.Executor != config.ExecutorRemote {
				return errors.New("backends requires --executor=remote")
			}
			logger, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			exec, err := cfg.Executor(logger)
			if err != nil {
				return fmt.Errorf("building executor: %w", err)
			}
			backends, err := exec.(*photon.Remote).Backends(cmd.Context())
			if err != nil {
				return err
			}
			return printBackends(cmd.OutOrStdout(), rank(backends))
		},
	}
}

// rank orders backends the way a Remote executor would choose among them.
// Backends it would never pick come last.
func rank(backends []photon.Backend) []photon.Backend {
	rest := append([]photon.Backend(nil), backends...)
	var ranked []photon.Backend
	for {
		b, err := photon.PickBackend(rest, "")
		if err != nil {
			break
		}
		ranked = append(ranked, b)
		for i := range rest {
			if rest[i].Name == b.Name {
				rest = append(rest[:i], rest[i+1:]...)
				break
			}
		}
	}
	return append(ranked, rest...)
}

func printResult(w io.Writer, res bb84.Result) error {
	preview := res.Key.String()
	if len(preview) > keyPreviewBits {
		preview = preview[:keyPreviewBits] + " ..."
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Raw transmissions:\t%d\n", res.RawTransmissions)
	fmt.Fprintf(tw, "Rounds:\t%d\n", res.Rounds)
	fmt.Fprintf(tw, "Sifted (before sample):\t%d\n", res.SiftedBeforeSample)
	fmt.Fprintf(tw, "Sample QBER:\t%.4f (upper bound %.4f)\n", res.QBER, res.QBERUpperBound)
	fmt.Fprintf(tw, "Key bits:\t%s\n", preview)
	fmt.Fprintf(tw, "Key length:\t%d\n", res.Key.Size())
	return tw.Flush()
}

func printBackends(w io.Writer, backends []photon.Backend) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIMULATOR\tOPERATIONAL\tPENDING")
	for _, b := range backends {
		fmt.Fprintf(tw, "%s\t%t\t%t\t%d\n", b.Name, b.Simulator, b.Operational, b.PendingJobs)
	}
	return tw.Flush()
}

func serveMetrics(addr string, logger *zap.Logger) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
