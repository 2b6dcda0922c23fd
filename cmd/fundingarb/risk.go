package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// newRiskCmd prints the current RiskSnapshot, mirroring the teacher's
// /risk endpoint (RiskEnvelopeHandler) as a one-shot CLI read instead of
// an HTTP call.
func newRiskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk",
		Short: "Print the current risk snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(log.Logger)
			if err != nil {
				return err
			}
			defer e.close()

			snap := e.risk.Snapshot()
			fmt.Printf("mode:                %s\n", snap.Mode)
			fmt.Printf("circuit breaker:     %v\n", snap.CircuitBreakerActive)
			fmt.Printf("total capital:       %s\n", snap.TotalCapital.String())
			fmt.Printf("total exposure:      %s\n", snap.TotalExposure.String())
			fmt.Printf("drawdown:            %.4f%%\n", snap.DrawdownPct*100)
			fmt.Printf("peak equity:         %s\n", snap.PeakEquity.String())
			fmt.Printf("VaR95 / VaR99:       %s / %s\n", snap.VaR95.String(), snap.VaR99.String())
			fmt.Printf("CVaR95 / CVaR99:     %s / %s\n", snap.CVaR95.String(), snap.CVaR99.String())
			fmt.Printf("volatility regime:   %s (%.4f)\n", snap.VolatilityRegime, snap.VolatilityEstimate)
			for venue, exp := range snap.VenueExposure {
				fmt.Printf("  venue exposure[%s]: %s\n", venue, exp.String())
			}
			for symbol, exp := range snap.SymbolExposure {
				fmt.Printf("  symbol exposure[%s]: %s\n", symbol, exp.String())
			}
			return nil
		},
	}
}
