// Package config loads the settings shared by the bb84 command-line tools.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/alan-christopher/bb84sim/bb84"
	"github.com/alan-christopher/bb84sim/bb84/photon"
	"github.com/alan-christopher/bb84sim/bb84/random"
)

// EnvPrefix prefixes every environment variable read by Load, e.g.
// BB84_REMOTE_TOKEN for remote.token.
const EnvPrefix = "BB84"

// Executor tags.
const (
	ExecutorLocal  = "local"
	ExecutorRemote = "remote"
)

// Config holds the parameters of a negotiation and of the channel it runs
// over.
type Config struct {
	KeyBits       int     `mapstructure:"key-bits"`
	SampleBits    int     `mapstructure:"sample-bits"`
	BatchSize     int     `mapstructure:"batch-size"`
	QBERThreshold float64 `mapstructure:"qber-threshold"`
	MaxRounds     int     `mapstructure:"max-rounds"`

	// Seed makes a run reproducible. Nil draws from system entropy.
	Seed *int64 `mapstructure:"-"`

	Executor string       `mapstructure:"executor"`
	Local    LocalConfig  `mapstructure:"local"`
	Remote   RemoteConfig `mapstructure:"remote"`

	LogLevel    string `mapstructure:"log-level"`
	MetricsAddr string `mapstructure:"metrics-addr"`
}

// LocalConfig configures the in-process simulator.
type LocalConfig struct {
	Noise     float64 `mapstructure:"noise"`
	Intercept float64 `mapstructure:"intercept"`
}

// RemoteConfig configures the job service client.
type RemoteConfig struct {
	Address      string        `mapstructure:"address"`
	Token        string        `mapstructure:"token"`
	Backend      string        `mapstructure:"backend"`
	MaxRetries   int           `mapstructure:"max-retries"`
	RetryDelay   time.Duration `mapstructure:"retry-delay"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		KeyBits:       100,
		SampleBits:    10,
		BatchSize:     bb84.DefaultBatchSize,
		QBERThreshold: bb84.DefaultQBERThreshold,
		Executor:      ExecutorLocal,
		Remote: RemoteConfig{
			MaxRetries:   photon.DefaultMaxRetries,
			RetryDelay:   photon.DefaultRetryDelay,
			PollInterval: photon.DefaultPollInterval,
		},
		LogLevel: "info",
	}
}

// Load reads the configuration from v on top of Default. If v has a config
// file set it is read first; environment variables prefixed with EnvPrefix
// override it, and flags bound to v override both.
func Load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := Default()
	setDefaults(v, cfg)
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	// A seed has no default, and a bound flag only counts if it was given.
	if v.IsSet("seed") {
		seed := v.GetInt64("seed")
		cfg.Seed = &seed
	}
	return cfg, cfg.Validate()
}

// setDefaults registers every key with v. Unmarshal ignores environment
// variables for keys viper has not otherwise heard of.
func setDefaults(v *viper.Viper, c Config) {
	for k, val := range map[string]any{
		"key-bits":             c.KeyBits,
		"sample-bits":          c.SampleBits,
		"batch-size":           c.BatchSize,
		"qber-threshold":       c.QBERThreshold,
		"max-rounds":           c.MaxRounds,
		"executor":             c.Executor,
		"local.noise":          c.Local.Noise,
		"local.intercept":      c.Local.Intercept,
		"remote.address":       c.Remote.Address,
		"remote.token":         c.Remote.Token,
		"remote.backend":       c.Remote.Backend,
		"remote.max-retries":   c.Remote.MaxRetries,
		"remote.retry-delay":   c.Remote.RetryDelay,
		"remote.poll-interval": c.Remote.PollInterval,
		"log-level":            c.LogLevel,
		"metrics-addr":         c.MetricsAddr,
	} {
		v.SetDefault(k, val)
	}
}

// Validate reports settings that could never produce a run. Negotiation
// parameters are checked again, more thoroughly, by bb84.Negotiate.
func (c Config) Validate() error {
	switch c.Executor {
	case ExecutorLocal:
		if c.Local.Noise < 0 || c.Local.Noise > 1 {
			return fmt.Errorf("local.noise %v outside [0, 1]", c.Local.Noise)
		}
		if c.Local.Intercept < 0 || c.Local.Intercept > 1 {
			return fmt.Errorf("local.intercept %v outside [0, 1]", c.Local.Intercept)
		}
	case ExecutorRemote:
		if c.Remote.Address == "" {
			return errors.New("executor remote requires remote.address")
		}
	default:
		return fmt.Errorf("unknown executor %q, want %q or %q", c.Executor, ExecutorLocal, ExecutorRemote)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	return nil
}

// Logger builds a development logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log-level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = lvl
	return zc.Build()
}

// Executor builds the photon.Executor selected by c.Executor.
func (c Config) Executor(logger *zap.Logger) (photon.Executor, error) {
	switch c.Executor {
	case ExecutorLocal:
		opts := photon.LocalOpts{Noise: c.Local.Noise, Intercept: c.Local.Intercept}
		if c.Seed != nil {
			opts.Seed, opts.Seeded = uint64(*c.Seed), true
		}
		l, err := photon.NewLocal(opts)
		if err != nil {
			return nil, err
		}
		return l, nil
	case ExecutorRemote:
		r, err := photon.NewRemote(photon.RemoteOpts{
			Address:      c.Remote.Address,
			Token:        c.Remote.Token,
			Backend:      c.Remote.Backend,
			MaxRetries:   c.Remote.MaxRetries,
			RetryDelay:   c.Remote.RetryDelay,
			PollInterval: c.Remote.PollInterval,
		}, photon.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown executor %q", c.Executor)
}

// Opts maps c onto the arguments of bb84.Negotiate.
func (c Config) Opts(exec photon.Executor, logger *zap.Logger) bb84.Opts {
	src := random.NewUnseeded()
	if c.Seed != nil {
		src = random.New(*c.Seed)
	}
	return bb84.Opts{
		KeyBits:       c.KeyBits,
		SampleBits:    c.SampleBits,
		BatchSize:     c.BatchSize,
		QBERThreshold: c.QBERThreshold,
		Rand:          src,
		Executor:      exec,
		Logger:        logger,
		MaxRounds:     c.MaxRounds,
	}
}
