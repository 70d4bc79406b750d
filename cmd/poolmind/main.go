// Command poolmind runs the pooled arbitrage trading engine: a cycle
// loop over simulated exchange feeds, a participant ledger, and a
// localhost control API.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/poolmind/poolmind/internal/config"
)

const (
	appName = "poolmind"
	version = "v1.0.0"
)

var (
	flagConfig string
	flagDebug  bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Pooled cross-exchange arbitrage engine",
		Version: version,
		Long: `PoolMind trades cross-exchange price dislocations with pooled capital.

Participants hold proportional claims on one ledger; an observe-reason-
act-reflect loop detects spreads, sizes positions through an optional
LLM advisory with a deterministic fallback, gates them on risk, and
simulates fills. A localhost HTTP API exposes engine control, pool
metrics, participant management, withdrawals, health, Prometheus
metrics, and a websocket cycle feed.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}

	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCycleCmd())
	rootCmd.AddCommand(newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flagConfig, "config", "", "Path to YAML config file")
	fs.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

// loadConfig resolves defaults, the optional YAML file, and environment
// overrides, then validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDebug {
		cfg.Debug = true
	}
	return cfg, nil
}
