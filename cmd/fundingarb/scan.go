package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fundingarb/core/internal/opportunity"
	"github.com/fundingarb/core/internal/types"
)

// newScanCmd runs a single Opportunity Engine evaluation for an
// operator-supplied (symbol, long, short) candidate, seeding the Market
// State Cache from flags in place of a live venue feed — venue adapters
// are out of this core's scope per SPEC_FULL.md §E. Mirrors the teacher's
// cmd/cryptorun/cmd_probe_data.go single-shot component probe.
func newScanCmd() *cobra.Command {
	var symbol, longVenue, shortVenue string
	var longRate, shortRate, longPrice, shortPrice, availableCapitalUSD float64

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Evaluate one candidate pair through the Opportunity Engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(log.Logger)
			if err != nil {
				return err
			}
			defer e.close()

			now := types.NowUTC()
			if err := e.cache.UpdateFundingRate(types.FundingRate{
				Venue: longVenue, Symbol: symbol, CurrentRate: decimal.NewFromFloat(longRate),
				NextFundingTime: now.Add(time.Hour), FundingIntervalHrs: 8, Source: types.SourcePrimary, LastUpdate: now,
			}); err != nil {
				return fmt.Errorf("seed long funding rate: %w", err)
			}
			if err := e.cache.UpdateFundingRate(types.FundingRate{
				Venue: shortVenue, Symbol: symbol, CurrentRate: decimal.NewFromFloat(shortRate),
				NextFundingTime: now.Add(time.Hour), FundingIntervalHrs: 8, Source: types.SourcePrimary, LastUpdate: now,
			}); err != nil {
				return fmt.Errorf("seed short funding rate: %w", err)
			}
			e.cache.UpdateQuote(types.Quote{Venue: longVenue, Symbol: symbol, Last: decimal.NewFromFloat(longPrice), LastUpdate: now})
			e.cache.UpdateQuote(types.Quote{Venue: shortVenue, Symbol: symbol, Last: decimal.NewFromFloat(shortPrice), LastUpdate: now})

			eng := opportunity.NewEngine(e.cache, e.cfgOpportunity, e.cfgAllocation, e.bus, nil, log.Logger)
			ext := opportunity.ExternalState{
				SystemRunning: true, LongVenueHasCreds: true, ShortVenueHasCreds: true,
				AvailableCapital: decimal.NewFromFloat(availableCapitalUSD),
			}
			opp, err := eng.Evaluate(symbol, longVenue, shortVenue, ext)
			if err != nil {
				return fmt.Errorf("evaluate: %w", err)
			}

			fmt.Printf("symbol:       %s (%s long / %s short)\n", opp.Symbol, opp.LongVenue, opp.ShortVenue)
			fmt.Printf("gross spread: %s\n", opp.GrossSpread.String())
			fmt.Printf("net APR:      %s%%\n", opp.NetAPR.String())
			fmt.Printf("UOS score:    %.2f\n", opp.UOSTotal)
			fmt.Printf("verdict:      %s\n", opp.Verdict)
			for _, d := range opp.VerdictDetails {
				fmt.Printf("  - %s\n", d)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTC-PERP", "symbol to evaluate")
	cmd.Flags().StringVar(&longVenue, "long", "venue-a", "long-leg venue name")
	cmd.Flags().StringVar(&shortVenue, "short", "venue-b", "short-leg venue name")
	cmd.Flags().Float64Var(&longRate, "long-rate", 0.0001, "long venue funding rate per interval")
	cmd.Flags().Float64Var(&shortRate, "short-rate", -0.0002, "short venue funding rate per interval")
	cmd.Flags().Float64Var(&longPrice, "long-price", 50000, "long venue last price")
	cmd.Flags().Float64Var(&shortPrice, "short-price", 50010, "short venue last price")
	cmd.Flags().Float64Var(&availableCapitalUSD, "available-capital", 100000, "capital available for allocation, USD")
	return cmd
}
