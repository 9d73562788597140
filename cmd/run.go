/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/logging"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/mobility"
	"github.com/azaurus1/fanet/internal/results"
	"github.com/azaurus1/fanet/internal/server"
	"github.com/azaurus1/fanet/internal/simulation"
)

var (
	steps       int
	metricsAddr string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("steps") {
			cfg.Simulation.Steps = steps
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.Metrics.Addr = metricsAddr
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := logging.Init(cfg.Log); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		runID := uuid.New()
		log := logrus.WithField("run_id", runID.String())

		counters := &metrics.Counters{}
		prom, err := metrics.NewPrometheus(prometheus.NewRegistry())
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		sink := metrics.Tee(counters, prom)

		sim, err := simulation.New(cfg, mobility.NewStatic(cfg.Mobility.Paths), sink, log)
		if err != nil {
			return err
		}

		var store *results.Store
		if cfg.Results.Path != "" {
			if store, err = results.Open(cfg.Results.Path); err != nil {
				return err
			}
			defer store.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if srv := serveMetrics(cfg.Metrics.Addr, prom, store, log); srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		start := time.Now()
		runErr := sim.Run(ctx)
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}

		log.WithFields(logrus.Fields{
			"steps":   sim.Current(),
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Info("run complete")

		if store != nil {
			if err := store.Save(results.NewRun(runID, start, cfg, sim.Current(), counters)); err != nil {
				return fmt.Errorf("failed to save run: %w", err)
			}
		}
		printSummary(cmd.OutOrStdout(), cfg, sim.Current(), counters)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&steps, "steps", 0, "override the number of simulated steps")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
}

func serveMetrics(addr string, prom *metrics.Prometheus, store *results.Store, log *logrus.Entry) *http.Server {
	if addr == "" {
		return nil
	}

	var history server.History
	if store != nil {
		history = store
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(prom.Handler(), history, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics server exited")
		}
	}()

	log.WithField("addr", addr).Info("serving Prometheus metrics")
	return srv
}

func printSummary(w io.Writer, cfg *config.Config, ran int, c *metrics.Counters) {
	stats := c.GetStats()
	fmt.Fprintf(w, "protocol:              %s\n", cfg.Routing.Protocol)
	fmt.Fprintf(w, "channel:               %s\n", cfg.Channel.ErrorModel)
	fmt.Fprintf(w, "steps:                 %d\n", ran)
	fmt.Fprintf(w, "generated:             %d\n", stats["generated"])
	fmt.Fprintf(w, "delivered:             %d\n", stats["delivered"])
	fmt.Fprintf(w, "rejected:              %d\n", stats["rejected"])
	fmt.Fprintf(w, "expired:               %d\n", stats["expired"])
	fmt.Fprintf(w, "ttl dropped:           %d\n", stats["ttl_dropped"])
	fmt.Fprintf(w, "undeliverable:         %d\n", stats["undeliverable"])
	fmt.Fprintf(w, "delivery ratio:        %.3f\n", stats["delivery_ratio"])
	fmt.Fprintf(w, "mean delivery delay:   %.2f steps\n", stats["avg_delivery_delay"])
	fmt.Fprintf(w, "mean relay candidates: %.2f\n", stats["avg_relay_candidates"])
}
