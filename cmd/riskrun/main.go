package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "RiskRun"
	version = "v1.0.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "riskrun",
		Short:   "Risk-adjusted signal decision engine",
		Version: version,
		Long: `RiskRun is the periodic decision engine for a multi-asset trading
platform: hierarchical risk control with correlation monitoring and
re-entry pacing, leakage-safe cross-validation, model lifecycle
management and ML/traditional signal fusion.

One evaluation runs per rebalance cycle; all market data and state is
supplied by external collaborators before the cycle starts.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (defaults apply when empty)")

	cycleCmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one evaluation cycle from a JSON input file",
		Long:  "Reads portfolio, returns, signals and model state from the input file, runs one deterministic evaluation and prints the cycle result as JSON.",
		RunE:  runCycle,
	}
	cycleCmd.Flags().String("input", "", "path to cycle input JSON (required)")
	cycleCmd.Flags().Bool("persist", false, "persist the cycle to the configured Postgres/Redis stores")
	_ = cycleCmd.MarkFlagRequired("input")

	cvCmd := &cobra.Command{
		Use:   "cv",
		Short: "Preview cross-validation fold layout",
		RunE:  runCV,
	}
	cvCmd.Flags().Int("samples", 1260, "number of time-ordered samples")
	cvCmd.Flags().String("method", "cpcv", "splitting strategy: cpcv or walkforward")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops HTTP surface (health, metrics, latest cycle)",
		RunE:  runServe,
	}

	rootCmd.AddCommand(cycleCmd, cvCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
