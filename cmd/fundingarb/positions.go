package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// newPositionsCmd lists active positions from persistence, mirroring the
// teacher's cmd_ops_status.go read-only operational inspection pattern.
func newPositionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "List active positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(log.Logger)
			if err != nil {
				return err
			}
			defer e.close()
			if e.posRepo == nil {
				return fmt.Errorf("positions: --postgres-dsn is required")
			}

			rows, err := e.posRepo.ListActive(cmd.Context())
			if err != nil {
				return fmt.Errorf("list active positions: %w", err)
			}
			if len(rows) == 0 {
				fmt.Println("no active positions")
				return nil
			}
			fmt.Printf("%-36s %-10s %-10s %-12s %-14s\n", "ID", "SYMBOL", "STATUS", "HEALTH", "UNREALIZED")
			for _, r := range rows {
				fmt.Printf("%-36s %-10s %-10s %-12s %-14s\n", r.ID, r.Symbol, r.Status, r.HealthStatus, r.UnrealizedPnL)
			}
			return nil
		},
	}
}
