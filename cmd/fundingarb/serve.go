package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	progresslog "github.com/fundingarb/core/internal/log"
)

// startupSteps names serve's startup pipeline for the StepLogger below.
var startupSteps = []string{
	"build environment", "start event bus", "reconcile capital",
	"start background loops", "start admin server",
}

// newServeCmd starts the full engine: bus, market state cache, risk
// controller, position manager and capital allocator background loops,
// and the admin HTTP server. Grounded on the teacher's runMonitor
// (monitor_main.go): a single http.ServeMux with health/metrics
// endpoints, run alongside the engine's own background goroutines rather
// than as a separate process. Startup itself is reported through the
// teacher's internal/log.StepLogger, same as a multi-stage scan pipeline.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine's background loops and admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sl := progresslog.NewStepLogger("fundingarb serve", startupSteps)

			sl.StartStep("build environment")
			e, err := buildEnv(log.Logger)
			if err != nil {
				sl.Fail(err.Error())
				return fmt.Errorf("build environment: %w", err)
			}
			defer e.close()
			sl.CompleteStep()

			sl.StartStep("start event bus")
			if err := e.bus.Start(ctx); err != nil {
				sl.Fail(err.Error())
				return fmt.Errorf("start event bus: %w", err)
			}
			defer e.bus.Stop(context.Background())
			sl.CompleteStep()

			sl.StartStep("reconcile capital")
			if e.alloc != nil {
				if err := e.alloc.ReconcileOnStartup(ctx); err != nil {
					log.Warn().Err(err).Msg("startup reconciliation failed, continuing")
				}
			}
			sl.CompleteStep()

			sl.StartStep("start background loops")
			go e.risk.Run(ctx)
			if e.posMgr != nil {
				go e.posMgr.Run(ctx)
			}
			sl.CompleteStep()

			sl.StartStep("start admin server")
			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", healthzHandler(e))
			mux.Handle("/metrics", e.metrics.Handler(prometheusGatherer()))

			srv := &http.Server{
				Addr:         flagAdminAddr,
				Handler:      mux,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			sl.CompleteStep()
			sl.Finish()

			log.Info().Str("addr", flagAdminAddr).Msg("fundingarb admin server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		},
	}
}

func healthzHandler(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := e.risk.Snapshot()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if snap.CircuitBreakerActive {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "degraded: circuit breaker active (mode=%s)\n", snap.Mode)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok: mode=%s\n", snap.Mode)
	}
}
