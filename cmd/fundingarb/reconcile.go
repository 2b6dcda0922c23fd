package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// newReconcileCmd triggers Capital Allocator's startup reconciliation
// (spec §4.3) on demand, exposing it as an operator-triggerable action
// per SPEC_FULL.md §C, mirroring the teacher's cmd_ops_status.go /
// cmd_replication.go operational command pattern.
func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run capital allocation reconciliation against persisted state",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(log.Logger)
			if err != nil {
				return err
			}
			defer e.close()
			if e.alloc == nil {
				return fmt.Errorf("reconcile: --postgres-dsn is required")
			}

			if err := e.alloc.ReconcileOnStartup(cmd.Context()); err != nil {
				return fmt.Errorf("reconciliation failed: %w", err)
			}
			fmt.Println("reconciliation complete")
			return nil
		},
	}
}
