// Command fundingarb is the operator CLI for the funding-rate arbitrage
// core, grounded on the teacher's cmd/cryptorun/main.go cobra+zerolog
// bootstrap: a single root command, persistent flags for the runtime
// environment, and one subcommand per operator-facing action instead of
// cryptorun's scanner-pipeline command tree.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const appName = "fundingarb"

var (
	flagConfigDir   string
	flagPostgresDSN string
	flagRedisAddr   string
	flagNATSURL     string
	flagAdminAddr   string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	noColor := !term.IsTerminal(int(os.Stderr.Fd()))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen, NoColor: noColor})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Cross-exchange funding-rate arbitrage core",
		Version: "v0.1.0",
		Long: `fundingarb hosts the funding-rate arbitrage engine's core components
and exposes operator actions for reconciliation and inspection.

'fundingarb serve' runs the risk and position loops with the /healthz and
/metrics admin server; it does not construct an execution coordinator.
'positions' lists active positions from Postgres (--postgres-dsn),
'risk' prints the snapshot of a risk controller built in this process,
and 'scan' evaluates a single candidate seeded from flags.`,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "config", "directory holding opportunity.yaml, allocation.yaml, position.yaml, execution.yaml, risk.yaml")
	rootCmd.PersistentFlags().StringVar(&flagPostgresDSN, "postgres-dsn", os.Getenv("FUNDINGARB_POSTGRES_DSN"), "PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&flagRedisAddr, "redis-addr", os.Getenv("FUNDINGARB_REDIS_ADDR"), "Redis address for the Market State Cache read-through mirror (empty disables it)")
	rootCmd.PersistentFlags().StringVar(&flagNATSURL, "nats-url", os.Getenv("FUNDINGARB_NATS_URL"), "NATS server URL for the event bus (empty uses the in-process stub bus)")
	rootCmd.PersistentFlags().StringVar(&flagAdminAddr, "admin-addr", "0.0.0.0:8090", "address for the /healthz and /metrics admin endpoints")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPositionsCmd())
	rootCmd.AddCommand(newRiskCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newScanCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
